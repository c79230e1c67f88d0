package credstore

import "errors"

var (
	// ErrStorageUnavailable wraps I/O failures from the underlying KV.
	ErrStorageUnavailable = errors.New("credential storage unavailable")
	// ErrPersistSession is returned when a session could not be written.
	ErrPersistSession = errors.New("could not persist session")
	// ErrNoToken is returned by AccessToken when no token is stored.
	ErrNoToken = errors.New("no access token stored")
)
