// Package errors provides structured, actionable error messages for resync.
//
// Every failure the CLI or the inspector reports carries a code that maps to
// a short message, a longer explanation and, where useful, a hint.
//
// # Error Categories
//
//   - runtime: effect and host lifecycle misuse (re-entrant calls, budgets)
//   - dependency: input lists that break the synchronization rule
//   - scenario: malformed or failing scenario files
//   - config: resync.json and archive backends
//   - cli: command usage and the inspector server
//
// # Error Codes
//
// Codes are grouped by hundred: R0xx runtime, R1xx dependency, R2xx
// scenario, R3xx config, R4xx cli. Classify maps errors returned by the
// resync packages to their code.
//
// # Usage
//
//	err := errors.New("R201").
//	    WithLocation("scenarios/loop.yaml", 7, 0).
//	    WithSuggestion("Declare the effect under effects: before listing its inputs")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR R201: Invalid scenario
//	//
//	//   scenarios/loop.yaml:7
//	//
//	//       5 │ passes:
//	//       6 │   - inputs:
//	//   →   7 │       countSecret: [{ref: secret}]
//	//       8 │ expect:
//	//
//	//   Hint: Declare the effect under effects: before listing its inputs
package errors
