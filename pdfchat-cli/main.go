package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"golang.org/x/term"

	wsadapter "github.com/satriahrh/cocoa-fruit/pdfchat/adapters/websocket"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "pdfchat server base URL")
	file := flag.String("file", "", "PDF to chat about (required)")
	apiKey := flag.String("api-key", os.Getenv("API_KEY"), "API key for creating sessions")
	hideThinking := flag.Bool("hide-thinking", false, "do not print the model's thinking")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	api := newAPIClient(strings.TrimRight(*server, "/"), *apiKey)
	sess, err := api.createSession()
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	upload, err := api.uploadDocument(*file)
	if err != nil {
		log.Fatalf("Failed to upload document: %v", err)
	}
	color.Green("%s (%s)", upload.Message, upload.Document.Name)

	wsURL, err := api.websocketURL()
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()

	out := newPrinter(!*hideThinking, term.IsTerminal(int(os.Stdout.Fd())))
	done := make(chan struct{}, 1)

	go func() {
		for {
			var msg wsadapter.Message
			if err := conn.ReadJSON(&msg); err != nil {
				log.Println("Connection closed:", err)
				os.Exit(0)
			}
			if out.handle(msg) {
				done <- struct{}{}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down...")
		conn.Close()
		os.Exit(0)
	}()

	fmt.Printf("Session %s. Ask about the document, /reset to start over, exit to quit.\n", sess.SessionID)
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text := strings.TrimSpace(line)

		switch text {
		case "":
			continue
		case "exit", "/exit":
			return
		case "/reset":
			if err := conn.WriteJSON(wsadapter.Message{Type: wsadapter.TypeReset, Timestamp: time.Now()}); err != nil {
				log.Println("Error sending message:", err)
				return
			}
			continue
		}

		out.start()
		err = conn.WriteJSON(wsadapter.Message{
			Type:      wsadapter.TypeAsk,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"text": text},
		})
		if err != nil {
			log.Println("Error sending message:", err)
			return
		}
		<-done
	}
}

// printer writes the growing thinking and final buffers of snapshots as
// deltas. On a terminal the final answer is rendered as markdown once it is
// complete.
type printer struct {
	showThinking bool
	markdown     bool
	renderer     *glamour.TermRenderer

	thinkingLen int
	finalLen    int
	dim         *color.Color
}

func newPrinter(showThinking, isTerminal bool) *printer {
	p := &printer{
		showThinking: showThinking,
		dim:          color.New(color.Faint),
	}
	if isTerminal {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || width < 40 {
			width = 80
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-10),
		)
		if err == nil {
			p.markdown = true
			p.renderer = renderer
		}
	}
	return p
}

func (p *printer) start() {
	p.thinkingLen = 0
	p.finalLen = 0
}

// handle prints one frame and reports whether it ends the pending question.
func (p *printer) handle(msg wsadapter.Message) bool {
	switch msg.Type {
	case wsadapter.TypeSnapshot:
		p.snapshot(stringField(msg, "thinking"), stringField(msg, "final"))
		return false

	case wsadapter.TypeAnswer:
		final := stringField(msg, "final")
		if p.markdown {
			fmt.Println()
			rendered, err := p.renderer.Render(final)
			if err != nil {
				rendered = final
			}
			fmt.Print(rendered)
		} else {
			p.snapshot(stringField(msg, "thinking"), final)
			fmt.Println()
		}
		return true

	case wsadapter.TypeError:
		color.Red("\nError [%s]: %s", stringField(msg, "code"), stringField(msg, "message"))
		return stringField(msg, "code") != "bad_message"

	case wsadapter.TypeEvent:
		if stringField(msg, "event") == "session.reset" {
			p.dim.Println("Conversation reset.")
		}
		return false
	}
	return false
}

func (p *printer) snapshot(thinking, final string) {
	if len(thinking) > p.thinkingLen {
		if p.showThinking {
			p.dim.Print(thinking[p.thinkingLen:])
		}
		p.thinkingLen = len(thinking)
	}
	if len(final) > p.finalLen {
		if !p.markdown {
			fmt.Print(final[p.finalLen:])
		}
		p.finalLen = len(final)
	}
}

func stringField(msg wsadapter.Message, key string) string {
	s, _ := msg.Data[key].(string)
	return s
}
