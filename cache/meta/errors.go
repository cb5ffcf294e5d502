package meta

import "github.com/akarasulu/cachefs/cache"

func inputError(op, msg string) error {
	return cache.NewError(cache.KindInput, op, errString(msg))
}

func storageError(op string, err error) error {
	return cache.NewError(cache.KindStore, op, err)
}

type errString string

func (e errString) Error() string { return string(e) }
