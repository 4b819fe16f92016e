package publisher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TerminalPrompt asks for the mail password on stderr and reads it from
// stdin without echo. When stdin is not a terminal it reads one line.
func TerminalPrompt(account string) PasswordFunc {
	return func() (string, error) {
		return readPassword(os.Stdin, os.Stderr, account)
	}
}

func readPassword(in *os.File, out io.Writer, account string) (string, error) {
	fmt.Fprintf(out, "Type the e-mail password for %s and press enter: ", account)

	if term.IsTerminal(int(in.Fd())) {
		pw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
