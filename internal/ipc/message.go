package ipc

import (
	"bytes"

	"github.com/aelexs/kernel-ipc/internal/domain"
)

// Message is one datagram delivered through an endpoint.
// Data is owned by the holder: Send copies the payload in, so sender and
// receiver never share storage.
type Message struct {
	Sender domain.PortID
	Data   []byte
}

func newMessage(sender domain.PortID, payload []byte) Message {
	return Message{Sender: sender, Data: bytes.Clone(payload)}
}
