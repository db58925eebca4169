package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/rivo/tview"

	"github.com/bz888/gab/internal/api"
	"github.com/bz888/gab/internal/config"
	"github.com/bz888/gab/internal/coordinator"
	"github.com/bz888/gab/internal/logger"
)

var app *tview.Application
var defaultModel = "llama3:latest" // default
var wg sync.WaitGroup

var (
	debugConsole *tview.TextView
	textView     *tview.TextView
	textArea     *tview.TextArea
	localLogger  *logger.Logger
	apiClient    *api.Client
	coord        *coordinator.Coordinator
)

// Requests the user walked away from, via /stop, Esc, or by sending a new
// message over a streaming one. Kept separately from the coordinator's
// bookkeeping: the active slot is also cleared by a completion push event,
// which can overtake the tail of the token stream and must not cut it off.
var (
	abandonedMu sync.Mutex
	abandoned   = make(map[coordinator.RequestID]struct{})
)

func markAbandoned(id coordinator.RequestID) {
	abandonedMu.Lock()
	abandoned[id] = struct{}{}
	abandonedMu.Unlock()
}

func clearAbandoned(id coordinator.RequestID) {
	abandonedMu.Lock()
	delete(abandoned, id)
	abandonedMu.Unlock()
}

// shouldRenderToken reports whether a token arriving for id still belongs in
// the transcript. Only explicit abandonment suppresses rendering.
func shouldRenderToken(id coordinator.RequestID) bool {
	abandonedMu.Lock()
	defer abandonedMu.Unlock()
	_, gone := abandoned[id]
	return !gone
}

func Init() {
	app = tview.NewApplication()
	app.EnablePaste(true)
	app.EnableMouse(true)

	debugConsole = initDebugConsole()

	textView = initChatViewer()
	textArea = initChatInput()
}

func initChatViewer() *tview.TextView {
	textView := tview.NewTextView().
		SetChangedFunc(func() {
			app.Draw()
		}).
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	textView.SetTitle("Conversation").SetBorder(true)
	textView.SetScrollable(true)
	textView.ScrollToEnd()
	return textView
}

func initChatInput() *tview.TextArea {
	textArea := tview.NewTextArea()
	textArea.SetTitle("Question").SetBorder(true)
	return textArea
}

func initDebugConsole() *tview.TextView {
	console := tview.NewTextView().
		SetChangedFunc(func() {
			app.Draw()
		}).
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	console.SetTitle("Debugger").SetBorder(true)
	console.ScrollToEnd()
	return console
}

func Run(client *api.Client, c *coordinator.Coordinator) {
	apiClient = client
	coord = c
	currentModel := defaultModel
	localLogger = logger.NewLogger("views")

	textView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter:
			app.SetFocus(textArea)
		}
		return event
	})

	subFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(textView, 0, 1, false).
		AddItem(textArea, 8, 2, true)
	mainFlex := tview.NewFlex().
		AddItem(subFlex, 0, 2, false)

	if config.Dev {
		mainFlex.AddItem(debugConsole, 0, 1, true)
	}

	setInputCapture(mainFlex, currentModel)

	if err := app.SetRoot(mainFlex, true).SetFocus(textArea).Run(); err != nil {
		panic(err)
	}
}

func setInputCapture(mainFlex *tview.Flex, currentModel string) {
	textArea.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {

		switch event.Key() {
		case tcell.KeyESC:
			// Esc abandons a streaming reply; otherwise it moves focus to the
			// conversation.
			if _, generating := coord.Active(); generating {
				stopGeneration()
				return nil
			}
			if textView.GetText(false) != "" {
				app.SetFocus(textView)
			}
		case tcell.KeyEnter:
			content := textArea.GetText()
			if strings.TrimSpace(content) == "" {
				return nil
			}
			textArea.SetText("", true)
			textArea.SetDisabled(true)

			switch strings.TrimSpace(content) {

			case "/help":
				listHelp(content)
				textArea.SetDisabled(false)
				return event
			case "/bye": // todo, /quit /exit should all work the same
				quitApp()
				return event
			case "/debug":
				toggleDebugConsole(mainFlex)
				textArea.SetDisabled(false)
				return event
			case "/stop":
				stopGeneration()
				textArea.SetDisabled(false)
				return event
			case "/models":
				go func() {
					createModelModal(currentModel, mainFlex)
					textArea.SetDisabled(false)
				}()
				return event
			}

			sendMessage(currentModel, content)
		}
		return event
	})
}

// sendMessage begins one generation exchange: the reply slot gets a fresh
// request id, the coordinator starts tracking it, and the transport streams
// tokens on its own goroutine. The task handle reaches the coordinator
// through the handshake callback; tokens for a request the user already
// abandoned are dropped instead of rendered.
func sendMessage(currentModel string, content string) {
	if prev, ok := coord.Active(); ok {
		markAbandoned(prev)
	}

	requestID := coordinator.RequestID(uuid.NewString())
	if err := coord.Start(requestID); err != nil {
		localLogger.Error("Failed to track request:", err)
		textArea.SetDisabled(false)
		return
	}

	fmt.Fprintln(textView, "\n\n[red::]You:[-]")
	fmt.Fprintf(textView, "%s\n\n", content)
	fmt.Fprintf(textView, "[green::]Bot:[-]\n")

	localLogger.Info("Input request:", content)
	localLogger.Info("Input model:", currentModel)

	go func() {
		err := apiClient.Chat(context.Background(), string(requestID), currentModel, content,
			func(taskHandle string) {
				coord.HandshakeComplete(requestID, taskHandle)
			},
			func(token string) {
				if !shouldRenderToken(requestID) {
					return
				}
				app.QueueUpdateDraw(func() {
					fmt.Fprintf(textView, "%s", token)
				})
			})
		if err != nil {
			localLogger.Error("Chat request failed:", err)
		}
		clearAbandoned(requestID)
		app.QueueUpdateDraw(func() {
			textArea.SetDisabled(false)
		})
	}()
}

// stopGeneration releases the user immediately; backend cleanup is the
// coordinator's problem from here on.
func stopGeneration() {
	id, ok := coord.Active()
	if !ok {
		return
	}
	markAbandoned(id)
	coord.Stop()
	fmt.Fprintf(textView, "\n\n[yellow::]Generation stopped[-]\n")
	localLogger.Info("Generation stopped by user")
}

func createModal(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

func createModelModal(currentModel string, mainFlex *tview.Flex) {
	models, err := apiClient.ListModels()
	if err != nil {
		localLogger.Error("Failed to list models:", err)
		return
	}

	var pages *tview.Pages
	list := tview.NewList()
	list.SetBorder(true)
	for i, model := range models {
		runeValue := '0' + rune(i)

		if model == currentModel {
			list.AddItem(model, "Current LLM", runeValue, func() {
				localLogger.Info("This model is currently in use", model)
				fmt.Fprintf(textView, "\nAlready using model: %s\n\n", model)
			})
		} else {
			list.AddItem(model, "LLM", runeValue, func() {
				localLogger.Info("Selected: ", model)
				currentModel = model
				fmt.Fprintf(textView, "\nUsing Model: %s\n\n", model)

				pages.RemovePage("modelModal")
				textArea.SetDisabled(false)
				app.SetFocus(textArea)
			})
		}
	}
	modal := createModal(list, 40, 10)
	list.
		AddItem("Back", "", 'q', func() {
			pages.RemovePage("modelModal")
			textArea.SetDisabled(false)
			app.SetFocus(textArea)
		})

	pages = tview.NewPages().
		AddPage("main", mainFlex, true, true).
		AddPage("modelModal", modal, true, true)

	if err := app.SetRoot(pages, true).Run(); err != nil {
		panic(err)
	}
	localLogger.Info("/models command executed and completed")
}

func toggleDebugConsole(mainFlex *tview.Flex) {
	go func() {
		// todo should be based on if the item is apart of the mainFlex
		if !config.Dev {
			app.QueueUpdateDraw(func() {
				mainFlex.AddItem(debugConsole, 0, 1, true)
				fmt.Fprintf(textView, "\nDebug console enabled\n")
			})
		} else {
			app.QueueUpdateDraw(func() {
				mainFlex.RemoveItem(debugConsole)
				fmt.Fprintf(textView, "\nDebug console disabled\n")
			})
		}
	}()
}

func quitApp() {
	fmt.Fprintf(textView, "Bye bye\n")

	wg.Add(1)
	go func() {
		defer wg.Done()
		localLogger.Close()
		app.Stop()
		log.Println("Shutting down gracefully.")
	}()

	wg.Wait()
	os.Exit(0)
}

func listHelp(content string) {
	fmt.Fprintln(textView, "[red::]You:[-]")
	fmt.Fprintf(textView, "%s\n\n", content)

	// all commands
	fmt.Fprintf(textView, "[green::]Bot:[-]\n")
	fmt.Fprintf(textView, "Here are some commands you can use:\n")
	fmt.Fprintf(textView, "- /help: Display this help message\n")
	fmt.Fprintf(textView, "- /bye: Exit the application\n")
	fmt.Fprintf(textView, "- /debug: Toggle the debug console\n")
	fmt.Fprintf(textView, "- /stop: Abandon the reply being generated\n")
	fmt.Fprintf(textView, "- /models: Select between local LLM\n\n")
}

func GetDebugConsole() (*tview.TextView, error) {
	if debugConsole == nil {
		return nil, errors.New("debug console not initialized")
	}
	return debugConsole, nil
}
