// Command breakout-cli is a console client for the breakout broker. It speaks the raw
// TCP protocol, or with -rooms prints the room directory from the HTTP API.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"breakout/pkg/protocol"
	"breakout/pkg/types"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errorColor("Error: "+err.Error()))
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("breakout-cli", flag.ContinueOnError)
	fs.SetOutput(out)
	addr := fs.String("addr", "localhost:7777", "broker TCP address")
	role := fs.String("role", "student", "instructor or student")
	name := fs.String("name", "", "username")
	rooms := fs.String("rooms", "", "print the room directory from this HTTP address and exit")
	noColor := fs.Bool("no-color", false, "disable colored output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *noColor {
		disableColor()
	}

	if *rooms != "" {
		return showRooms(*rooms, out)
	}

	r, ok := types.ParseRole(*role)
	if !ok {
		return fmt.Errorf("role must be instructor or student, got %q", *role)
	}
	if *name == "" {
		return errors.New("-name is required")
	}
	return chat(*addr, r, *name, in, out)
}

func showRooms(base string, out io.Writer) error {
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/api/rooms")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	printRooms(out, string(body))
	return nil
}

// chat logs in and relays stdin lines to the broker until stdin ends, the user quits
// or the server closes the connection.
func chat(addr string, role types.Role, name string, in io.Reader, out io.Writer) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(protocol.FormatLogin(role, name))); err != nil {
		return err
	}

	buf := make([]byte, protocol.MaxMessageBytes)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("no login reply: %w", err)
	}
	reply := string(buf[:n])
	if protocol.IsRejection(reply) {
		return errors.New(strings.TrimSpace(reply))
	}

	d := newDisplay(out)
	d.Handle(reply)
	printHelp(out)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		buf := make([]byte, 4*protocol.MaxMessageBytes)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				d.Handle(string(buf[:n]))
			}
			if err != nil {
				fmt.Fprintln(out, noticeColor("Disconnected from server."))
				return
			}
		}
	}()

	err = relayInput(conn, readLines(in, serverDone), serverDone, out)
	_ = conn.Close()
	<-serverDone
	return err
}

// readLines feeds lines from in to the returned channel until input ends or done is
// closed.
func readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case <-done:
				return
			default:
			}
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

// relayInput forwards typed lines until input ends, the user quits or the server goes
// away.
func relayInput(conn net.Conn, lines <-chan string, serverDone <-chan struct{}, out io.Writer) error {
	for {
		select {
		case <-serverDone:
			return nil
		case line, ok := <-lines:
			if !ok {
				_, _ = conn.Write([]byte(protocol.DisconnectNotice))
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/help":
				printHelp(out)
				continue
			}
			if _, err := conn.Write([]byte(line)); err != nil {
				return err
			}
			if line == "/quit" {
				select {
				case <-serverDone:
				case <-time.After(time.Second):
				}
				return nil
			}
		}
	}
}
