package core

type SessionID string

// MemberSession is what a channel stores and fans out to.
type MemberSession interface {
	ID() SessionID
	Username() string
	Signal() SignalConnection
}
