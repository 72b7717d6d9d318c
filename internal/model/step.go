package model

import "fmt"

// StepCount is the number of fee-gated steps in the workflow.
const StepCount = 3

// Route identifies a navigation destination exposed to the hosting shell.
// The workflow only decides where to go; the shell performs the navigation.
type Route string

const (
	RouteLogin    Route = "/login"
	RouteStep1    Route = "/recovery/step1"
	RouteStep2    Route = "/recovery/step2"
	RouteStep3    Route = "/recovery/step3"
	RouteComplete Route = "/recovery/complete"
)

// Step describes one fee-gated step of the workflow: its number, the fee
// assigned on first render, its own route and the route that follows it.
type Step struct {
	Number     int
	Name       string
	DefaultFee int64
	Route      Route
	Next       Route
}

// Steps is the full workflow, in order. A single generic controller is
// parameterized by one of these entries; there is no per-step code.
var Steps = [StepCount]Step{
	{Number: 1, Name: "extraction", DefaultFee: 75000, Route: RouteStep1, Next: RouteStep2},
	{Number: 2, Name: "firewall", DefaultFee: 125000, Route: RouteStep2, Next: RouteStep3},
	{Number: 3, Name: "final-unlock", DefaultFee: 350000, Route: RouteStep3, Next: RouteComplete},
}

// StepByNumber returns the step definition for n (1..3).
func StepByNumber(n int) (Step, error) {
	if n < 1 || n > StepCount {
		return Step{}, fmt.Errorf("no such step: %d", n)
	}
	return Steps[n-1], nil
}

// StepRoute returns the route serving step n, falling back to step 1 for
// out-of-range values.
func StepRoute(n int) Route {
	if n < 1 || n > StepCount {
		return RouteStep1
	}
	return Steps[n-1].Route
}
