//go:build darwin || freebsd || netbsd || openbsd

package gsk

var backendFactories = map[string]backendFactory{
	backendNameKqueue: newKqueueBackend,
	backendNamePoll:   newPollBackend,
	backendNameSelect: newSelectBackend,
}

// autoconfOrder is tried in order when no explicit/env backend name resolves.
var autoconfOrder = []string{backendNameKqueue, backendNamePoll, backendNameSelect}
