package kern

import "reflect"

// Word is one machine word of a task stack. PC and LR slots carry real
// Go code addresses (see FuncPC), so the word is pointer sized.
type Word uintptr

const (
	// FrameWords is the size of one full register frame: the eight
	// hardware-stacked words plus the eight callee-saved words the
	// context-switch routine pushes.
	FrameWords = 16

	// DefaultXPSR is the reset status-register value for thread mode
	// (Thumb bit set).
	DefaultXPSR Word = 0x01000000
)

// Frame is the register frame layout written to the top of a task
// stack at registration and consumed by the context-switch routine on
// restore. Word order within the stack, from the top down:
//
//	xPSR, PC, LR, R12, R3, R2, R1, R0,    (stacked by hardware)
//	R7, R6, R5, R4, R11, R10, R9, R8      (stacked by software)
type Frame struct {
	R8, R9, R10, R11 Word
	R4, R5, R6, R7   Word
	R0, R1, R2, R3   Word
	R12              Word
	LR               Word
	PC               Word
	XPSR             Word
}

// EncodeFrame writes f into the top FrameWords words of stack and
// returns the resulting stack-pointer word index (top minus
// FrameWords). The rest of the buffer is left untouched.
func EncodeFrame(stack []Word, f Frame) (int, error) {
	if len(stack) < FrameWords {
		return 0, ErrStackTooSmall
	}
	top := len(stack)
	stack[top-1] = f.XPSR
	stack[top-2] = f.PC
	stack[top-3] = f.LR
	stack[top-4] = f.R12
	stack[top-5] = f.R3
	stack[top-6] = f.R2
	stack[top-7] = f.R1
	stack[top-8] = f.R0
	stack[top-9] = f.R7
	stack[top-10] = f.R6
	stack[top-11] = f.R5
	stack[top-12] = f.R4
	stack[top-13] = f.R11
	stack[top-14] = f.R10
	stack[top-15] = f.R9
	stack[top-16] = f.R8
	return top - FrameWords, nil
}

// DecodeFrame reads the frame saved at stack-pointer index sp. This is
// the restore half of the layout contract: a context-switch routine
// simulating an exception return consumes exactly these words.
func DecodeFrame(stack []Word, sp int) (Frame, error) {
	if sp < 0 || sp+FrameWords > len(stack) {
		return Frame{}, ErrInvalidParam
	}
	top := sp + FrameWords
	return Frame{
		XPSR: stack[top-1],
		PC:   stack[top-2],
		LR:   stack[top-3],
		R12:  stack[top-4],
		R3:   stack[top-5],
		R2:   stack[top-6],
		R1:   stack[top-7],
		R0:   stack[top-8],
		R7:   stack[top-9],
		R6:   stack[top-10],
		R5:   stack[top-11],
		R4:   stack[top-12],
		R11:  stack[top-13],
		R10:  stack[top-14],
		R9:   stack[top-15],
		R8:   stack[top-16],
	}, nil
}

// FuncPC returns the code address of fn, the value written into a
// frame's PC slot. Zero for a nil fn.
func FuncPC(fn EntryFunc) Word {
	if fn == nil {
		return 0
	}
	return Word(reflect.ValueOf(fn).Pointer())
}

func codeAddr(fn any) Word {
	return Word(reflect.ValueOf(fn).Pointer())
}
