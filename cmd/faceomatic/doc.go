// Command faceomatic is the operator CLI: it runs the daemon in the
// foreground, triggers discovery and dispatch by hand, inspects jobs and
// runs, manages the webhook registry, and reports readiness.
package main
