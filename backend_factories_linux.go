//go:build linux

package gsk

var backendFactories = map[string]backendFactory{
	backendNameEpoll:  newEpollBackend,
	backendNamePoll:   newPollBackend,
	backendNameSelect: newSelectBackend,
}

// autoconfOrder is tried in order when no explicit/env backend name resolves.
var autoconfOrder = []string{backendNameEpoll, backendNamePoll, backendNameSelect}
