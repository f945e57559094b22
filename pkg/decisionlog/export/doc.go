// Package export writes decision-log records as JSON or CSV.
package export
