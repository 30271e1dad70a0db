// Package mockapi serves the dispatch board fixtures over HTTP.
//
// This package is internal to dispatchboard and stands in for the remote
// REST API during development and tests. It exposes:
//
//   - GET   /api/{collection}       list journeys, vehicles, tasks or products
//   - GET   /api/{collection}/{id}  fetch one entity
//   - PATCH /api/{collection}/{id}  shallow-merge a JSON object into an entity
//
// Every API route honors two query parameters: ?delay=1500 adds latency in
// milliseconds before the response, and ?error=true returns a 500 error
// immediately.
package mockapi
