package core

import (
	"errors"
	"sync"

	"scanadc/protocol"
)

// CommandHandler is a function that handles a command with raw frame data
// The handler is responsible for decoding its own arguments from the data pointer
type CommandHandler func(data *[]byte) error

// Command is one entry of the message dictionary. Entries with a nil Handler
// are responses (MCU to host).
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "index=%c selector=%c"
	Handler CommandHandler
}

// ResponseSender frames and queues an outgoing message.
type ResponseSender interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

// CommandRegistry assigns message ids in registration order and dispatches
// incoming commands.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
	sender   ResponseSender
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a message and returns its id. Registering a known name
// returns the existing id.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++
	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.nameToID[name] = id

	return id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// GetCommandByName retrieves a command by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered messages
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for cmdID
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return errors.New("unknown command ID: " + itoa(int(cmdID)))
	}
	if cmd.Handler == nil {
		return errors.New("not a command: " + cmd.Name)
	}
	return cmd.Handler(data)
}

// GetCommandsAndResponses returns the dictionary view of the registry:
// "name format" to id, split into host commands and firmware responses.
func (r *CommandRegistry) GetCommandsAndResponses() (commands, responses map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands = make(map[string]int)
	responses = make(map[string]int)
	for id, cmd := range r.commands {
		key := cmd.Name
		if cmd.Format != "" {
			key += " " + cmd.Format
		}
		if cmd.Handler != nil {
			commands[key] = int(id)
		} else {
			responses[key] = int(id)
		}
	}
	return commands, responses
}

// SetSender installs the transport responses are written to.
func (r *CommandRegistry) SetSender(sender ResponseSender) {
	r.mu.Lock()
	r.sender = sender
	r.mu.Unlock()
}

// SendResponse encodes a registered response. It is dropped when no sender
// is installed.
func (r *CommandRegistry) SendResponse(name string, args func(output protocol.OutputBuffer)) {
	r.mu.RLock()
	sender := r.sender
	id, ok := r.nameToID[name]
	r.mu.RUnlock()

	if !ok {
		// all responses are registered at init
		panic("Response not registered: " + name)
	}
	if sender != nil {
		sender.SendCommand(id, args)
	}
}

// DispatchCommand is a convenience function using the global registry
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

// SendResponse sends a response through the global registry
func SendResponse(name string, args func(output protocol.OutputBuffer)) {
	globalRegistry.SendResponse(name, args)
}

// SetGlobalSender sets the transport used by SendResponse
func SetGlobalSender(sender ResponseSender) {
	globalRegistry.SetSender(sender)
}

// GetGlobalRegistry returns the global command registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
