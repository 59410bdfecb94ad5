package domain

import "strings"

type Status string

const (
	StatusToDo       Status = "ToDo"
	StatusInProgress Status = "InProgress"
	StatusDone       Status = "Done"
)

// Statuses returns every valid task status.
func Statuses() []Status {
	return []Status{StatusToDo, StatusInProgress, StatusDone}
}

// ParseStatus accepts the canonical names and the spaced labels
// ("To Do", "In Progress") older clients send.
func ParseStatus(s string) (Status, bool) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	for _, st := range Statuses() {
		if strings.ToLower(string(st)) == key {
			return st, true
		}
	}
	return "", false
}

func (s Status) Valid() bool {
	for _, st := range Statuses() {
		if s == st {
			return true
		}
	}
	return false
}
