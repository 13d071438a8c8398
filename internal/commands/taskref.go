package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"todo/internal/tasksync"
)

// TaskRef is a parsed task reference: either a 1-based position in the
// listing or a task id.
type TaskRef struct {
	Num int
	ID  string
}

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// ParseTaskRef parses the task reference from args.
//
// An all-digit argument is a list position. Anything else is taken as a task
// id, so ids made only of digits must be written with an "id:" prefix.
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return TaskRef{}, ErrTaskRefRequired
	}
	if len(args) > 1 {
		return TaskRef{}, fmt.Errorf("unexpected argument: %s", args[1])
	}

	arg := strings.TrimSpace(args[0])
	if isAllDigits(arg) {
		num, err := strconv.Atoi(arg)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
		}
		return TaskRef{Num: num}, nil
	}

	id := strings.TrimPrefix(arg, "id:")
	if id == "" {
		return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
	}
	return TaskRef{ID: id}, nil
}

// Resolve returns the task id the reference names within tasks.
// Ids are returned as given, whether or not they appear in tasks.
func (r TaskRef) Resolve(tasks []tasksync.Task) (string, error) {
	if r.ID != "" {
		return r.ID, nil
	}
	if r.Num < 1 || r.Num > len(tasks) {
		return "", fmt.Errorf("task number out of range: %d", r.Num)
	}
	return tasks[r.Num-1].ID, nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
