// Package control
// Author: momentics <momentics@gmail.com>
//
// Hot-reload, runtime metrics, configuration loading, and debug
// introspection for the NFV dataplane worker's control plane.
package control
