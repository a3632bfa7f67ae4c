package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageRef identifies one message for reactions, votes and comments.
// Peer is either a public username (without @) or a "-100"-prefixed numeric
// chat ID for private channels.
type MessageRef struct {
	Peer      string
	MessageID int
}

// ParseMessageLink understands the two t.me link forms:
//
//	https://t.me/c/123456/789   (private channel, numeric ID)
//	https://t.me/somechannel/42 (public username)
func ParseMessageLink(link string) (MessageRef, error) {
	clean := strings.TrimSpace(link)
	clean = strings.TrimPrefix(clean, "https://")
	clean = strings.TrimPrefix(clean, "http://")
	if !strings.HasPrefix(clean, "t.me/") {
		return MessageRef{}, fmt.Errorf("not a t.me message link: %q", link)
	}
	clean = strings.TrimPrefix(clean, "t.me/")
	clean = strings.TrimSuffix(clean, "/")

	parts := strings.Split(clean, "/")
	if strings.HasPrefix(clean, "c/") {
		if len(parts) < 3 {
			return MessageRef{}, fmt.Errorf("malformed private channel link: %q", link)
		}
		if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
			return MessageRef{}, fmt.Errorf("invalid chat id in link %q: %w", link, err)
		}
		messageID, err := strconv.Atoi(parts[2])
		if err != nil {
			return MessageRef{}, fmt.Errorf("invalid message id in link %q: %w", link, err)
		}
		return MessageRef{Peer: "-100" + parts[1], MessageID: messageID}, nil
	}

	if len(parts) < 2 {
		return MessageRef{}, fmt.Errorf("malformed message link: %q", link)
	}
	messageID, err := strconv.Atoi(parts[1])
	if err != nil {
		return MessageRef{}, fmt.Errorf("invalid message id in link %q: %w", link, err)
	}
	return MessageRef{Peer: parts[0], MessageID: messageID}, nil
}

// MessageLink renders the canonical t.me link for a message, preferring the
// public username form when the chat has one.
func MessageLink(chatUsername string, chatID int64, messageID int) string {
	if chatUsername != "" {
		return fmt.Sprintf("https://t.me/%s/%d", chatUsername, messageID)
	}
	id := strconv.FormatInt(chatID, 10)
	id = strings.TrimPrefix(id, "-100")
	id = strings.TrimPrefix(id, "-")
	return fmt.Sprintf("https://t.me/c/%s/%d", id, messageID)
}
