//go:build solaris

package gsk

var backendFactories = map[string]backendFactory{
	backendNameDevPoll: newDevPollBackend,
	backendNamePoll:    newPollBackend,
	backendNameSelect:  newSelectBackend,
}

// autoconfOrder is tried in order when no explicit/env backend name resolves.
var autoconfOrder = []string{backendNameDevPoll, backendNamePoll, backendNameSelect}
