// Package reply maps a reply-target back to the submission it refers to.
package reply

import (
	"errors"
	"regexp"
	"strconv"

	kit "orderbot/internal/transport"
)

var (
	ErrNoReplyTarget  = errors.New("message is not a reply")
	ErrMarkerNotFound = errors.New("message id marker not found")
)

var markerRe = regexp.MustCompile(`#MSG(\d+)`)

// Marker returns the text embedded in bot replies so later replies can resolve back.
func Marker(id int) string { return "#MSG" + strconv.Itoa(id) }

// Resolve returns the submission id a reply points at.
//
// A reply to the user's own message targets that message. A reply to a bot
// message targets the id in its first #MSG<digits> marker.
func Resolve(ref *kit.ReplyRef) (int, error) {
	if ref == nil {
		return 0, ErrNoReplyTarget
	}
	if !ref.FromBot {
		return ref.MessageID, nil
	}
	m := markerRe.FindStringSubmatch(ref.Text)
	if m == nil {
		return 0, ErrMarkerNotFound
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		// digits overflowing int
		return 0, ErrMarkerNotFound
	}
	return id, nil
}
