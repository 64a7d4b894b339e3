// Package alert detects abuse patterns in the audit trail.
//
// The Engine counts audit events inside trailing windows and raises a
// security alert when a threshold is reached. Each alert type has its own
// cooldown, so a sustained attack produces one alert per cooldown period
// instead of one per check. Alerts are handed to a Sink; publish failures
// are logged and never returned to the caller.
package alert
