// Package canned answers fixed chat phrases without calling the completion
// service. Rules are tried in order and the first match wins.
package canned
