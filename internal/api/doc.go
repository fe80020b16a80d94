// Package api exposes the REST surface for submitting delegated workflow
// jobs, polling their results, and inspecting aggregate statistics. It also
// hosts the token issuance endpoint and the Prometheus metrics handler.
package api
