// Package statusapi serves the subsystem's state over HTTP.
//
// Routes:
//
//	GET    /health       connection state, last refresh and backend reachability
//	GET    /bots         merged bot views, optionally filtered by ?status= and ?ready=
//	GET    /bots/{id}    one merged bot view
//	GET    /rooms        joined rooms
//	POST   /rooms/{id}   join a room
//	DELETE /rooms/{id}   leave a room
//	POST   /refresh      run a full fetch and wait for it
//	GET    /metrics      Prometheus metrics
package statusapi
