// Package app is the terminal front-end: a setup form followed by the group
// chat view.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"groupchat/internal/cryptographic/protect"
	"groupchat/internal/model"
	"groupchat/internal/network"
	"groupchat/internal/repository/preferences"
	"groupchat/internal/service/chat"
	"groupchat/internal/utils/log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageSetup = "setup"
	pageChat  = "chat"

	sendTimeout = 5 * time.Second
)

type (
	App struct {
		app     *tview.Application
		pages   *tview.Pages
		chatbox *tview.TextView
		input   *tview.InputField
		status  *tview.TextView

		store     preferences.Store
		protector protect.Protector
		adapters  []network.Adapter
		overrides Overrides
		prefs     *preferences.Preferences

		lines chan string
		quit  chan struct{}

		mu        sync.Mutex
		transport *chat.Transport
	}
)

func NewApp(store preferences.Store, protector protect.Protector, adapters []network.Adapter, o Overrides) *App {
	return &App{
		app:       tview.NewApplication(),
		store:     store,
		protector: protector,
		adapters:  adapters,
		overrides: o,
		lines:     make(chan string, 256),
		quit:      make(chan struct{}),
	}
}

// Run blocks until the user exits. The transport, if one was started, is
// stopped before Run returns.
func (c *App) Run(ctx context.Context) error {
	prefs, err := c.store.Load(ctx)
	if err != nil {
		log.Warn("load preferences failed", zap.Error(err))
		prefs = &preferences.Preferences{}
	}
	c.prefs = prefs

	session, ready := resolveSession(prefs, c.protector, c.adapters, c.overrides)

	c.pages = tview.NewPages().
		AddPage(pageChat, c.renderChat(), true, false).
		AddPage(pageSetup, c.renderSetup(ctx, session), true, !ready)

	if ready {
		c.pages.SwitchToPage(pageChat)
		c.app.SetFocus(c.input)
		go c.connect(ctx, session, false)
	}

	go c.pump()
	err = c.app.SetRoot(c.pages, true).EnableMouse(true).Run()
	close(c.quit)

	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	t.Stop()

	if err != nil {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}

// Deliver renders transport events. It implements chat.Sink.
func (c *App) Deliver(ctx context.Context, e model.Event) {
	select {
	case c.lines <- format(e):
	case <-ctx.Done():
	case <-c.quit:
	}
}

func (c *App) print(line string) {
	select {
	case c.lines <- line:
	case <-c.quit:
	}
}

func (c *App) pump() {
	for {
		select {
		case line := <-c.lines:
			c.app.QueueUpdateDraw(func() {
				fmt.Fprint(c.chatbox, line)
				c.chatbox.ScrollToEnd()
			})
		case <-c.quit:
			return
		}
	}
}

func (c *App) renderChat() tview.Primitive {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(" Group chat ")

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message (/exit to quit) ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		c.input.SetText("")

		switch strings.TrimSpace(text) {
		case "":
			return
		case "/exit", "/quit":
			c.app.Stop()
			return
		}

		c.mu.Lock()
		t := c.transport
		c.mu.Unlock()
		if t == nil {
			go c.print(errorLine("not connected yet"))
			return
		}

		go func(msg string) {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := t.Send(ctx, msg); err != nil {
				log.Error("send message failed", zap.Error(err))
				c.print(errorLine(err.Error()))
			}
		}(text)
	})

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)
}

func (c *App) renderSetup(ctx context.Context, s Session) tview.Primitive {
	options := make([]string, len(c.adapters))
	current := 0
	for i, a := range c.adapters {
		options[i] = a.String()
		if a.Name == s.Adapter.Name && a.IP == s.Adapter.IP {
			current = i
		}
	}

	c.status = tview.NewTextView().SetDynamicColors(true)
	if len(c.adapters) == 0 {
		c.status.SetText("[red]no usable IPv4 network adapter found[-]")
	}

	form := tview.NewForm().
		AddInputField("Nickname", s.Nickname, model.MaxSenderLength+2, nil, nil).
		AddPasswordField("Password", string(s.Password), 32, '*', nil).
		AddDropDown("Adapter", options, current, nil).
		AddInputField("Port", strconv.Itoa(s.Port), 6, tview.InputFieldInteger, nil)

	form.AddButton("Join", func() {
		nick := form.GetFormItemByLabel("Nickname").(*tview.InputField).GetText()
		pass := form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
		idx, _ := form.GetFormItemByLabel("Adapter").(*tview.DropDown).GetCurrentOption()
		port := form.GetFormItemByLabel("Port").(*tview.InputField).GetText()

		session, err := parseSetup(nick, pass, idx, port, c.adapters)
		if err != nil {
			c.status.SetText("[red]" + tview.Escape(err.Error()) + "[-]")
			return
		}
		if len(session.Password) == 0 {
			c.status.SetText("[yellow]empty password: messages will not be confidential[-]")
		}

		c.pages.SwitchToPage(pageChat)
		c.app.SetFocus(c.input)
		go c.connect(ctx, session, true)
	})
	form.AddButton("Quit", func() { c.app.Stop() })
	form.SetBorder(true).SetTitle(" Join group chat ")

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(c.status, 1, 0, false)
}

func (c *App) connect(ctx context.Context, s Session, save bool) {
	t, err := chat.Listen(s.ChatConfig())
	if err != nil {
		log.Error("join failed", zap.Error(err))
		c.app.QueueUpdateDraw(func() {
			c.status.SetText("[red]" + tview.Escape(err.Error()) + "[-]")
			c.pages.SwitchToPage(pageSetup)
		})
		return
	}

	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()

	title := fmt.Sprintf(" %s @ %s:%d (encrypted) ", s.Nickname, s.Adapter.IP, s.Port)
	if !t.Encrypted() {
		title = fmt.Sprintf(" %s @ %s:%d [red](NOT encrypted)[-] ", s.Nickname, s.Adapter.IP, s.Port)
	}
	c.app.QueueUpdateDraw(func() {
		c.chatbox.SetTitle(title)
	})

	if err := t.Start(c); err != nil {
		c.print(errorLine(err.Error()))
		return
	}

	if save {
		if err := saveSession(ctx, c.store, c.protector, c.prefs, s); err != nil {
			log.Warn("save preferences failed", zap.Error(err))
			c.print(errorLine("preferences not saved: " + err.Error()))
		}
	}
}

func format(e model.Event) string {
	ts := e.At.Format("15:04")
	body := tview.Escape(e.Message.Body)
	switch e.Origin {
	case model.OriginLocal:
		return fmt.Sprintf("[gray]%s[-] [yellow]You:[-] %s\n", ts, body)
	case model.OriginRemote:
		return fmt.Sprintf("[gray]%s[-] [green]%s:[-] %s\n", ts, tview.Escape(e.Message.Sender), body)
	default:
		return fmt.Sprintf("[gray]%s[-] [blue]* %s[-]\n", ts, body)
	}
}

func errorLine(msg string) string {
	return fmt.Sprintf("[red]! %s[-]\n", tview.Escape(msg))
}
