package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cowrite/scribe/commons"
	"github.com/cowrite/scribe/session"
)

type ConnReader interface {
	ReadJSON(v interface{}) error
}

type ConnWriter interface {
	WriteJSON(v interface{}) error
	Close() error
}

var (
	flags  Flags
	logger = logrus.New()
	sess   *session.Session
)

func main() {
	flags = parseFlags()

	logFile, debugLogFile, err := setupLogger(logger)
	if err != nil {
		fmt.Printf("Logger setup failed, exiting: %s", err)
		os.Exit(1)
	}
	defer closeLogFiles(logFile, debugLogFile)

	if flags.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Display welcome message.
	color.Green("Opening %q @ %s", flags.Doc, flags.Server)
	color.Yellow("Commands: set, del, ins, cut, push, pop, !doc, !q")

	// Get WebSocket connection.
	conn, _, err := createConn(flags)
	if err != nil {
		color.Red("Connection error, exiting: %s", err)
		os.Exit(1)
	}
	defer conn.Close()

	sess = session.New(flags.Doc, logger)
	open, err := sess.Open()
	if err != nil {
		color.Red("Open failed, exiting: %s", err)
		os.Exit(1)
	}
	if err := conn.WriteJSON(open); err != nil {
		color.Red("Connection error, exiting: %s", err)
		os.Exit(1)
	}

	msgChan := getMsgChan(conn)
	inputChan := getInputChan()

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				color.Red("Server closed. Exiting...")
				return
			}
			if err := handleMsg(msg); err != nil {
				if errors.Is(err, session.ErrClosed) {
					color.Red("Session closed by server: %s", err)
					return
				}
				color.Red("error: %s", err)
				logger.Errorf("failed to handle message: %v", err)
			}

		case line, ok := <-inputChan:
			if !ok {
				fmt.Println("Goodbye!")
				return
			}
			out, err := handleInput(line)
			if err != nil {
				color.Red("error: %s", err)
				continue
			}
			if out == nil {
				continue
			}
			if err := conn.WriteJSON(out); err != nil {
				color.Red("lost connection: %s", err)
				return
			}
			if out.Type == commons.CloseMessage {
				fmt.Println("Goodbye!")
				return
			}
		}
	}
}

// getMsgChan returns a message channel that repeatedly reads from a websocket connection.
func getMsgChan(conn ConnReader) chan *commons.Message {
	messageChan := make(chan *commons.Message)
	go func() {
		for {
			var msg commons.Message

			// Read message.
			err := conn.ReadJSON(&msg)
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Errorf("websocket error: %v", err)
				}
				close(messageChan)
				break
			}

			logger.Infof("message received: %+v", msg)

			// send message through channel
			messageChan <- &msg
		}
	}()
	return messageChan
}

// getInputChan returns a channel of console lines repeatedly waiting on user input.
func getInputChan() chan string {
	inputChan := make(chan string)
	go func() {
		s := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !s.Scan() {
				close(inputChan)
				return
			}
			inputChan <- s.Text()
		}
	}()
	return inputChan
}
