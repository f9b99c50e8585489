package router

import "github.com/mahaj/chat-core/pkg/model"

// The inbound traffic is a closed set of intent variants so the dispatch
// loop can handle them exhaustively. Each send intent carries a buffered
// reply channel that is resolved exactly once.

type intent interface{ isIntent() }

type joinIntent struct {
	sess     *Session
	username string
	reply    chan joinResult
}

type joinResult struct {
	participant model.Participant
	err         error
}

type sendGlobalIntent struct {
	sessID  string
	content string
	tempID  int64
	reply   chan Result
}

type sendDirectIntent struct {
	sessID  string
	to      string
	content string
	tempID  int64
	reply   chan Result
}

type typingIntent struct {
	sessID string
	typing bool
}

type leaveIntent struct {
	sessID string
	reply  chan leaveResult
}

type leaveResult struct {
	participant model.Participant
	removed     bool
}

func (joinIntent) isIntent()       {}
func (sendGlobalIntent) isIntent() {}
func (sendDirectIntent) isIntent() {}
func (typingIntent) isIntent()     {}
func (leaveIntent) isIntent()      {}
