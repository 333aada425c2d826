// Package archive talks to the broadcast archive: it fetches the weekly
// listing of recorded program ids, streams a program's full recording to
// disk with the operator's login cookies, and builds the public links used in
// reports.
package archive
