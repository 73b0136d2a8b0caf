// Package server exposes flow runs over HTTP.
//
// Routes:
//
//	GET  /health              liveness
//	POST /v1/runs             run a flow document (full or legacy form)
//	GET  /v1/runs             list stored runs (?flow_id=, ?limit=)
//	GET  /v1/runs/:runID      fetch a stored run
//	POST /v1/flows/validate   parse and lint a flow document
//
// Runs execute synchronously within the request.
package server
