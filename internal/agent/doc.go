// Package agent contains crew's core (non-UI) logic.
//
// It brings up the configured tool servers, wraps every remote tool they
// announce as a locally callable one, and tracks which server answers
// unrouted calls.
package agent
