// Package discovery turns the archive's program listing into registered jobs.
//
// Each tick fetches the listing, parses every id into network, airtime, and
// program, keeps the recent broadcasts from allow-listed networks that the
// job store has never seen, and registers them as Unprocessed. Running the
// registrar twice against the same listing registers nothing new.
package discovery
