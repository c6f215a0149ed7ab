package exception

import "github.com/yanun0323/errors"

// Link errors
var (
	ErrLinkNilTransport   = errors.New("link: nil transport")
	ErrLinkNilEvents      = errors.New("link: nil event handler")
	ErrLinkNotRegistered  = errors.New("link: transport not registered")
	ErrLinkNotConnected   = errors.New("link: not connected")
	ErrLinkConnected      = errors.New("link: already connected")
	ErrLinkClosed         = errors.New("link: client closed")
	ErrLinkBadConfig      = errors.New("link: invalid config")
	ErrLinkFrameTooLarge  = errors.New("link: frame exceeds max size")
	ErrLinkDecode         = errors.New("link: decode message")
	ErrLinkUnknownNetwork = errors.New("link: unknown network")
	ErrLinkEmptyAddress   = errors.New("link: empty address")

	ErrLinkRedialExhausted = errors.New("link: redial attempts exhausted")
)
