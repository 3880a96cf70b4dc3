package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to stdout
func NewOutput(format string) *Output {
	return &Output{format: format, w: os.Stdout}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case User:
		o.printUser(v)
	case AuthResult:
		o.printAuthResult(v)
	case LazyUsers:
		o.printLazyUsers(v)
	case CleanupResult:
		o.printCleanupResult(v)
	case ClassifyResult:
		o.printClassifyResult(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// User response type (matches API)
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsLazy      bool   `json:"is_lazy"`
	CreatedAt   string `json:"created_at"`
}

// AuthResult combines user and token
type AuthResult struct {
	User         User   `json:"user"`
	SessionToken string `json:"session_token"`
	ExpiresAt    string `json:"expires_at"`
}

// LazyUser response type
type LazyUser struct {
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

// LazyUsers response type
type LazyUsers struct {
	OlderThan string     `json:"older_than"`
	Users     []LazyUser `json:"users"`
}

// CleanupResult response type
type CleanupResult struct {
	Deleted int      `json:"deleted"`
	UserIDs []string `json:"user_ids"`
}

// ClassifyResult response type
type ClassifyResult struct {
	UserAgent   string `json:"user_agent"`
	Blacklisted bool   `json:"blacklisted"`
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (o *Output) printUser(u User) {
	fmt.Fprintf(o.w, "User: %s (%s)\n", u.Username, u.ID)
	if u.DisplayName != "" && u.DisplayName != u.Username {
		fmt.Fprintf(o.w, "Display Name: %s\n", u.DisplayName)
	}
	if u.Email != "" {
		fmt.Fprintf(o.w, "Email: %s\n", u.Email)
	}
	fmt.Fprintf(o.w, "Lazy: %s\n", yesNo(u.IsLazy))
}

func (o *Output) printAuthResult(a AuthResult) {
	o.printUser(a.User)
	fmt.Fprintf(o.w, "Token: %s\n", a.SessionToken)
	fmt.Fprintf(o.w, "Expires: %s\n", a.ExpiresAt)
}

func (o *Output) printLazyUsers(l LazyUsers) {
	fmt.Fprintf(o.w, "Lazy users older than %s (%d):\n", l.OlderThan, len(l.Users))
	for _, u := range l.Users {
		fmt.Fprintf(o.w, "  - %s created %s\n", u.UserID, u.CreatedAt)
	}
}

func (o *Output) printCleanupResult(c CleanupResult) {
	fmt.Fprintf(o.w, "Deleted %d lazy users\n", c.Deleted)
	for _, id := range c.UserIDs {
		fmt.Fprintf(o.w, "  - %s\n", id)
	}
}

func (o *Output) printClassifyResult(c ClassifyResult) {
	fmt.Fprintf(o.w, "User-Agent: %s\n", c.UserAgent)
	fmt.Fprintf(o.w, "Blacklisted: %s\n", yesNo(c.Blacklisted))
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
}
