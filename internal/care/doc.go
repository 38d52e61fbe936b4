// Package care aggregates the dashboard view for the person in scope.
//
// A Scope owns everything the dashboard shows beside the entity lists:
// fall alerts under the current filter, the device status overview,
// detection summaries and per-person vital history. It reads persons,
// devices and mappings through an *entity.Cache and everything else
// through a Source, normally a *backend.Client.
//
// Read failures never escape a Scope. Each refresh logs its failure,
// resets its own slice of state to empty and records a *problem.Problem
// under its section name so the view can render an error state.
//
// HydrateScope is guarded against overlap: a call made while another is
// in flight returns false immediately without issuing any request.
//
// Scheduler runs non-forced hydration on a cron expression.
package care
