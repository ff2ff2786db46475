package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	quizdom "github.com/paifgx/quizdom-sub000"
	"github.com/paifgx/quizdom-sub000/monitor"
)

const helpText = `commands:
  login <email> <password>     sign in
  register <email> <password>  create an account and sign in
  whoami                       show the signed-in user and view
  admin | player               switch view (admins only)
  goto <path>                  move to a path
  profile key=value ...        update name, avatar or email
  validate                     ask the identity service if the session is valid
  logout                       sign out
  delete                       delete the account
  metrics                      print session counters
  help                         show this text
  quit                         leave`

// shell is an interactive host for the controller. It doubles as the
// navigator, tracking the current path.
type shell struct {
	feed *monitor.ActivityFeed

	mu   sync.Mutex
	out  io.Writer
	path string
	c    *quizdom.Controller
}

var _ quizdom.Navigator = (*shell)(nil)

func newShell(out io.Writer, feed *monitor.ActivityFeed) *shell {
	return &shell{
		out:  out,
		feed: feed,
		path: "/",
	}
}

func (s *shell) attach(c *quizdom.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = c
}

// Navigate implements quizdom.Navigator. It may be called from the monitor
// goroutine.
func (s *shell) Navigate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	fmt.Fprintf(s.out, "-> %s\n", path)
}

func (s *shell) currentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// run reads commands from in until EOF, quit or ctx is done.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.printf("%s> ", s.currentPath())
		if !scanner.Scan() {
			s.printf("\n")
			return scanner.Err()
		}
		if s.exec(ctx, scanner.Text()) {
			return nil
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	s.feed.Emit(monitor.ActivityKeyPress)

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		s.printf("%s\n", helpText)
	case "login", "register":
		s.authenticate(ctx, cmd, args)
	case "whoami":
		s.whoami()
	case "admin":
		if !s.c.SwitchToAdminView(ctx, s, s.currentPath()) {
			s.printf("admin view requires admin permission\n")
		}
	case "player":
		if !s.c.SwitchToPlayerView(ctx, s, s.currentPath()) {
			s.printf("view switching requires admin permission\n")
		}
	case "goto":
		if len(args) != 1 || !strings.HasPrefix(args[0], "/") {
			s.printf("usage: goto /path\n")
			return false
		}
		s.Navigate(args[0])
	case "profile":
		s.profile(ctx, args)
	case "validate":
		if s.c.ValidateSession(ctx) {
			s.printf("session valid\n")
		} else {
			s.printf("no valid session\n")
		}
	case "logout":
		s.c.Logout(ctx)
	case "delete":
		if err := s.c.DeleteAccount(ctx); err != nil {
			s.printf("delete failed: %s\n", quizdom.Reason(err))
		}
	case "metrics":
		s.metrics()
	default:
		s.printf("unknown command %q, try help\n", cmd)
	}
	return false
}

func (s *shell) authenticate(ctx context.Context, cmd string, args []string) {
	if len(args) != 2 {
		s.printf("usage: %s <email> <password>\n", cmd)
		return
	}
	call := s.c.Login
	if cmd == "register" {
		call = s.c.Register
	}
	if err := call(ctx, args[0], args[1]); err != nil {
		s.printf("%s failed: %s\n", cmd, quizdom.Reason(err))
		return
	}
	s.whoami()
}

func (s *shell) whoami() {
	snap := s.c.Snapshot()
	if !snap.IsAuthenticated() {
		s.printf("not signed in\n")
		return
	}
	u := snap.User
	name := u.DisplayName
	if name == "" {
		name = u.Email
	}
	s.printf("%s <%s> permission=%s view=%s\n", name, u.Email, u.Permission, snap.ActiveRole)
}

func (s *shell) profile(ctx context.Context, args []string) {
	var patch quizdom.ProfilePatch
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			s.printf("expected key=value, got %q\n", arg)
			return
		}
		v := value
		switch key {
		case "name":
			patch.DisplayName = &v
		case "avatar":
			patch.AvatarURL = &v
		case "email":
			patch.Email = &v
		default:
			s.printf("unknown profile field %q\n", key)
			return
		}
	}
	if patch.Empty() {
		s.printf("usage: profile name=<name> avatar=<url> email=<email>\n")
		return
	}
	if _, err := s.c.UpdateProfile(ctx, patch); err != nil {
		s.printf("profile update failed: %s\n", quizdom.Reason(err))
		return
	}
	s.whoami()
}

func (s *shell) metrics() {
	snap := s.c.MetricsSnapshot()
	if len(snap.Counters) == 0 {
		s.printf("metrics disabled\n")
		return
	}
	ids := make([]int, 0, len(snap.Counters))
	for id := range snap.Counters {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		s.printf("%-28s %d\n", quizdom.MetricID(id).String(), snap.Counters[quizdom.MetricID(id)])
	}
}
