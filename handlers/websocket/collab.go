package websocket

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/engine.io/v2/utils"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"image-editor-server/editor"
	"image-editor-server/editor/interact"
)

type ackInvoker func(err error, payload map[string]any)

// SetupSocketIO serves the gesture channel. A client joins its session with
// "join-session", then streams "pointer", "wheel" and "key" events. Editor
// notifications are emitted to the session's room under their kind:
// "scene-changed", "selection-changed", "context-menu" and "history-changed".
func (h *Hub) SetupSocketIO() *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(1000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	localhostOrigin := regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	opts.SetCors(&types.Cors{
		Origin: []any{
			localhostOrigin,
		},
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	h.emit = func(sessionID, event string, payload any) {
		_ = srv.To(socketio.Room(sessionID)).Emit(event, payload)
	}

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		me := socket.Id()

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("join-session", func(datas ...any) {
			ack, args := extractAck(datas)
			var sessionID, token string
			if len(args) > 0 {
				sessionID, _ = args[0].(string)
			}
			if len(args) > 1 {
				token, _ = args[1].(string)
			}
			if sessionID == "" {
				err := fmt.Errorf("session id is required")
				respondWithAck(socket, ack, "join-session-ack", errorPayload(err), err)
				return
			}

			if prev, ok := h.currentSession(string(me)); ok && prev != sessionID {
				socket.Leave(socketio.Room(prev))
			}
			ed, viewers, err := h.join(string(me), sessionID, token)
			if err != nil {
				utils.Log().Printf("socket %v failed to join session %v: %v\n", me, sessionID, err)
				respondWithAck(socket, ack, "join-session-ack", errorPayload(err), err)
				return
			}
			socket.Join(socketio.Room(sessionID))
			utils.Log().Printf("Socket %v has joined session %v\n", me, sessionID)

			st, err := ed.State()
			if err != nil {
				respondWithAck(socket, ack, "join-session-ack", errorPayload(err), err)
				return
			}
			respondWithAck(socket, ack, "join-session-ack", map[string]any{
				"status":  "ok",
				"viewers": viewers,
				"state":   st,
			}, nil)
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("pointer", func(datas ...any) {
			h.handleGesture(socket, datas, "pointer-ack", func(ed *editor.Editor, arg any) (map[string]any, error) {
				var ev interact.PointerEvent
				if err := decodeArg(arg, &ev); err != nil {
					return nil, err
				}
				return nil, ed.Pointer(ev)
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("wheel", func(datas ...any) {
			h.handleGesture(socket, datas, "wheel-ack", func(ed *editor.Editor, arg any) (map[string]any, error) {
				var ev interact.WheelEvent
				if err := decodeArg(arg, &ev); err != nil {
					return nil, err
				}
				zoomed, err := ed.Wheel(ev)
				if err != nil {
					return nil, err
				}
				st, err := ed.State()
				if err != nil {
					return nil, err
				}
				return map[string]any{"zoomed": zoomed, "viewport": st.Viewport}, nil
			})
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("key", func(datas ...any) {
			h.handleGesture(socket, datas, "key-ack", func(ed *editor.Editor, arg any) (map[string]any, error) {
				var ev interact.KeyEvent
				if err := decodeArg(arg, &ev); err != nil {
					return nil, err
				}
				n, err := ed.Key(ev)
				if err != nil {
					return nil, err
				}
				return map[string]any{"deleted": n}, nil
			})
		})

		socket.On("disconnecting", func(datas ...any) {
			if sessionID, viewers := h.leave(string(me)); sessionID != "" {
				utils.Log().Printf("socket %v left session %v, %d viewers remain\n", me, sessionID, viewers)
			}
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}

// handleGesture runs fn against the socket's editor and acknowledges with its
// result. Gesture acks are not echoed as events.
func (h *Hub) handleGesture(socket *socketio.Socket, datas []any, event string, fn func(*editor.Editor, any) (map[string]any, error)) {
	ack, args := extractAck(datas)
	if len(args) == 0 {
		err := fmt.Errorf("event payload is required")
		respondWithAck(socket, ack, event, errorPayload(err), err)
		return
	}
	ed, err := h.editorFor(string(socket.Id()))
	if err != nil {
		respondWithAck(socket, ack, event, errorPayload(err), err)
		return
	}
	payload, err := fn(ed, args[0])
	if err != nil {
		respondWithAck(socket, ack, event, errorPayload(err), err)
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = "ok"
	if ack != nil {
		ack(nil, payload)
	}
}

func (h *Hub) currentSession(socketID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.sockets[socketID]
	return id, ok
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	candidate := datas[len(datas)-1]
	ack = wrapAck(candidate)
	if ack == nil {
		return nil, datas
	}

	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		args := buildAckArgs(typ, err, payload)
		value.Call(args)
	}
}

func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	for i := 0; i < numIn; i++ {
		paramType := typ.In(i)
		var argValue any

		switch {
		case numIn == 1:
			if err != nil {
				argValue = err
			} else {
				argValue = payload
			}
		case i == 0:
			argValue = err
		case i == 1:
			argValue = payload
		default:
			argValue = nil
		}

		args[i] = coerceValue(argValue, paramType)
	}

	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(targetType) {
		return rv
	}

	if rv.Type().ConvertibleTo(targetType) {
		return rv.Convert(targetType)
	}

	if targetType.Kind() == reflect.Interface {
		if rv.Type().Implements(targetType) || targetType.NumMethod() == 0 {
			return rv
		}
	}

	if targetType.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}

	if targetType.Kind() == reflect.Map && targetType.Key().Kind() == reflect.String {
		if payload, ok := value.(map[string]any); ok {
			return convertMap(payload, targetType)
		}
	}

	return reflect.Zero(targetType)
}

func convertMap(source map[string]any, targetType reflect.Type) reflect.Value {
	result := reflect.MakeMapWithSize(targetType, len(source))
	for key, val := range source {
		keyValue := reflect.ValueOf(key).Convert(targetType.Key())
		valueValue := reflect.ValueOf(val)
		if !valueValue.Type().AssignableTo(targetType.Elem()) {
			if valueValue.Type().ConvertibleTo(targetType.Elem()) {
				valueValue = valueValue.Convert(targetType.Elem())
			} else if targetType.Elem().Kind() != reflect.Interface {
				continue
			}
		}
		result.SetMapIndex(keyValue, valueValue)
	}
	return result
}

func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
	}

	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}

func errorPayload(err error) map[string]any {
	return map[string]any{
		"status": "error",
		"error":  err.Error(),
	}
}
