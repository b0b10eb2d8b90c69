package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// HTTPVerb enumerates the verbs an operation can be registered under.
type HTTPVerb int

const (
	Unknown HTTPVerb = iota
	GET
	POST
	DELETE
)

// RestMethod binds one operation of the table to an HTTP verb,
// path, and gin handler.
type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler func(c *gin.Context)
}

var restMethods = make(map[string]RestMethod)

// RegisterMethod is a helper for Register.
func RegisterMethod(verb HTTPVerb, path string, h func(c *gin.Context)) {
	if err := Register(RestMethod{Verb: verb, Path: path, Handler: h}); err != nil {
		panic(err)
	}
}

// Register adds m to the method table, failing if the verb+path pair is
// already registered.
func Register(m RestMethod) error {
	key := fmt.Sprintf("%d_%s", m.Verb, m.Path)
	if _, exists := restMethods[key]; exists {
		return fmt.Errorf("can't add %s, a handler is already registered", key)
	}
	restMethods[key] = m
	return nil
}

// RestMethods returns every registered method.
func RestMethods() []RestMethod {
	out := make([]RestMethod, 0, len(restMethods))
	for _, m := range restMethods {
		out = append(out, m)
	}
	return out
}
