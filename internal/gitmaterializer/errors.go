package gitmaterializer

import "errors"

var (
	ErrCloneFailed           = errors.New("gitmaterializer: clone failed")
	ErrCloneTimeout          = errors.New("gitmaterializer: clone timed out")
	ErrCollectionInstall     = errors.New("gitmaterializer: collection install failed")
	ErrCollectionTimeout     = errors.New("gitmaterializer: collection install timed out")
	ErrAmbiguousCollection   = errors.New("gitmaterializer: more than one collection installed, supply an FQCN")
	ErrNoCollectionInstalled = errors.New("gitmaterializer: no collection installed")
	ErrPathEscapesRepo       = errors.New("gitmaterializer: path escapes repository root")
)
