//go:build windows

package backend

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"keyremap/internal/input"
)

// InjectionMarker is written to dwExtraInfo of every synthesized event so the
// low-level hooks can recognize them.
const InjectionMarker uintptr = 0x4B524D50

const (
	whKeyboardLL = 13
	whMouseLL    = 14
	hcAction     = 0

	wmQuit        = 0x0012
	wmKeyDown     = 0x0100
	wmSysKeyDown  = 0x0104
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208

	inputMouse    = 0
	inputKeyboard = 1

	llkhfExtended = 0x01

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002

	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procSendInput           = user32.NewProc("SendInput")
	procGetModuleHandleW    = kernel32.NewProc("GetModuleHandleW")
)

type kbdLLHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msLLHookStruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

type keybdInput struct {
	Vk        uint16
	Scan      uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type mouseInput struct {
	Dx        int32
	Dy        int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// INPUT is the type tag followed by a union sized by MOUSEINPUT: 40 bytes on
// 64-bit, 28 on 32-bit. Field alignment supplies the padding after Type;
// KEYBDINPUT is 8 bytes shorter than MOUSEINPUT on both.
type keyboardINPUT struct {
	Type uint32
	Ki   keybdInput
	_    [8]byte
}

type mouseINPUT struct {
	Type uint32
	Mi   mouseInput
}

// extendedKeys need KEYEVENTF_EXTENDEDKEY or they are read as numpad keys.
var extendedKeys = map[uint16]bool{
	0x21: true, 0x22: true, 0x23: true, 0x24: true,
	0x25: true, 0x26: true, 0x27: true, 0x28: true,
	0x2D: true, 0x2E: true, 0x6F: true, 0x5B: true,
	0x2C: true,
}

type mouseMessage struct {
	button input.Button
	down   bool
}

var mouseMessages = map[uintptr]mouseMessage{
	wmLButtonDown: {input.ButtonLeft, true},
	wmLButtonUp:   {input.ButtonLeft, false},
	wmRButtonDown: {input.ButtonRight, true},
	wmRButtonUp:   {input.ButtonRight, false},
	wmMButtonDown: {input.ButtonMiddle, true},
	wmMButtonUp:   {input.ButtonMiddle, false},
}

var mouseFlags = map[input.Button][2]uint32{
	input.ButtonLeft:   {mouseeventfLeftDown, mouseeventfLeftUp},
	input.ButtonRight:  {mouseeventfRightDown, mouseeventfRightUp},
	input.ButtonMiddle: {mouseeventfMiddleDown, mouseeventfMiddleUp},
}

// Windows is the low-level hook backend.
type Windows struct {
	log *slog.Logger

	kbProc    uintptr
	mouseProc uintptr

	mu    sync.RWMutex
	hooks map[input.EventType]*winHook
}

func newWindows(log *slog.Logger) (Backend, error) {
	if err := procSetWindowsHookExW.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	b := &Windows{
		log:   log.With("component", "backend", "backend", "windows"),
		hooks: make(map[input.EventType]*winHook),
	}
	b.kbProc = windows.NewCallback(b.keyboardProc)
	b.mouseProc = windows.NewCallback(b.mouseHookProc)
	return b, nil
}

func (b *Windows) Name() string { return "windows" }

func (b *Windows) Capabilities() Capabilities {
	return Capabilities{Suppression: SuppressSelective, KeyUp: true, Tagging: TagMarker}
}

type winHook struct {
	b        *Windows
	t        input.EventType
	handler  Handler
	threadID uint32
	ready    chan error
	done     chan struct{}
	once     sync.Once
}

// Subscribe installs the low-level hook for t on a dedicated OS thread.
func (b *Windows) Subscribe(t input.EventType, h Handler) (Subscription, error) {
	var idHook int
	var proc uintptr
	switch t {
	case input.TypeKeyboard:
		idHook, proc = whKeyboardLL, b.kbProc
	case input.TypeMouse:
		idHook, proc = whMouseLL, b.mouseProc
	default:
		return nil, fmt.Errorf("subscribe %q: %w", t, ErrUnsupported)
	}

	b.mu.Lock()
	if _, ok := b.hooks[t]; ok {
		b.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	hk := &winHook{
		b:       b,
		t:       t,
		handler: h,
		ready:   make(chan error, 1),
		done:    make(chan struct{}),
	}
	b.hooks[t] = hk
	b.mu.Unlock()

	go hk.run(idHook, proc)

	if err := <-hk.ready; err != nil {
		b.remove(hk)
		return nil, err
	}
	b.log.Debug("hook installed", "type", t)
	return hk, nil
}

func (h *winHook) run(idHook int, proc uintptr) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.done)

	h.threadID = windows.GetCurrentThreadId()
	hmod, _, _ := procGetModuleHandleW.Call(0)

	hhook, _, callErr := procSetWindowsHookExW.Call(uintptr(idHook), proc, hmod, 0)
	if hhook == 0 {
		h.ready <- fmt.Errorf("%w: SetWindowsHookExW(%d): %v", ErrHookInstall, idHook, callErr)
		return
	}
	h.ready <- nil

	var m winMsg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
	}
	procUnhookWindowsHookEx.Call(hhook)
}

// Close posts WM_QUIT to the hook thread and waits for it to unhook.
func (h *winHook) Close() error {
	h.once.Do(func() {
		for {
			r, _, _ := procPostThreadMessageW.Call(uintptr(h.threadID), wmQuit, 0, 0)
			if r != 0 {
				break
			}
			select {
			case <-h.done:
			case <-time.After(10 * time.Millisecond):
				continue
			}
			break
		}
		<-h.done
		h.b.remove(h)
		h.b.log.Debug("hook removed", "type", h.t)
	})
	return nil
}

func (b *Windows) remove(h *winHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hooks[h.t] == h {
		delete(b.hooks, h.t)
	}
}

func (b *Windows) dispatch(ev RawEvent) Verdict {
	b.mu.RLock()
	hk := b.hooks[ev.Type]
	b.mu.RUnlock()
	if hk == nil {
		return Pass
	}
	return hk.handler(ev)
}

func (b *Windows) keyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == hcAction {
		kb := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
		if value, ok := input.ValueForHookKey(uint16(kb.VkCode), kb.Flags&llkhfExtended != 0); ok {
			ev := RawEvent{
				Type:     input.TypeKeyboard,
				Value:    value,
				Down:     wParam == wmKeyDown || wParam == wmSysKeyDown,
				Injected: kb.DwExtraInfo == InjectionMarker,
				Code:     kb.VkCode,
			}
			if b.dispatch(ev) == Suppress {
				return 1
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}

func (b *Windows) mouseHookProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == hcAction {
		if mm, ok := mouseMessages[wParam]; ok {
			ms := (*msLLHookStruct)(unsafe.Pointer(lParam))
			ev := RawEvent{
				Type:     input.TypeMouse,
				Value:    mm.button.String(),
				Down:     mm.down,
				Injected: ms.DwExtraInfo == InjectionMarker,
				Code:     uint32(mm.button),
			}
			if b.dispatch(ev) == Suppress {
				return 1
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}

func (b *Windows) KeyDown(value string) error { return b.sendKey(value, false) }
func (b *Windows) KeyUp(value string) error { return b.sendKey(value, true) }

func (b *Windows) MouseDown(value string) error { return b.sendMouse(value, false) }
func (b *Windows) MouseUp(value string) error { return b.sendMouse(value, true) }

func (b *Windows) sendKey(value string, up bool) error {
	vk, ok := input.VirtualKey(value)
	if !ok {
		return fmt.Errorf("%s: %w", value, ErrUnknownValue)
	}
	var flags uint32
	if up {
		flags |= keyeventfKeyUp
	}
	if extendedKeys[vk] || input.IsExtendedKey(value) {
		flags |= keyeventfExtendedKey
	}
	in := keyboardINPUT{
		Type: inputKeyboard,
		Ki:   keybdInput{Vk: vk, Flags: flags, ExtraInfo: InjectionMarker},
	}
	return sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in))
}

func (b *Windows) sendMouse(value string, up bool) error {
	btn, ok := input.MouseButton(value)
	if !ok {
		return fmt.Errorf("%s: %w", value, ErrUnknownValue)
	}
	flags := mouseFlags[btn][0]
	if up {
		flags = mouseFlags[btn][1]
	}
	in := mouseINPUT{
		Type: inputMouse,
		Mi:   mouseInput{Flags: flags, ExtraInfo: InjectionMarker},
	}
	return sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in))
}

func sendInput(p unsafe.Pointer, size uintptr) error {
	r, _, err := procSendInput.Call(1, uintptr(p), size)
	if r == 0 {
		return fmt.Errorf("SendInput: %v", err)
	}
	return nil
}
