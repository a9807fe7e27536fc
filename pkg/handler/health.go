package handler

import (
	"fmt"
	"net/http"
)

// Availability reports whether the store currently accepts commands.
type Availability interface {
	Available() bool
}

// Health answers 200 while the process is running.
func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Ready answers 200 when the store is ready and 503 otherwise. The proxy
// keeps serving / in bypass mode either way.
func Ready(store Availability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !store.Available() {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}
