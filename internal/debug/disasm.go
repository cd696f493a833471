package debug

import (
	"fmt"
	"strings"
)

var condNames = [16]string{
	"EQ", "NE", "CS", "CC", "MI", "PL", "VS", "VC",
	"HI", "LS", "GE", "LT", "GT", "LE", "", "NV",
}

var shiftNames = [4]string{"LSL", "LSR", "ASR", "ROR"}

var dpNames = [16]string{
	"AND", "EOR", "SUB", "RSB", "ADD", "ADC", "SBC", "RSC",
	"TST", "TEQ", "CMP", "CMN", "ORR", "MOV", "BIC", "MVN",
}

func regList(mask uint32, n int) string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for i := 0; i < n; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "R%d", i)
		first = false
	}
	b.WriteByte('}')
	return b.String()
}

// operand2 renders the shifter operand of a data-processing instruction.
func operand2(op uint32) string {
	if op&(1<<25) != 0 {
		imm := op & 0xFF
		rot := (op >> 8 & 0xF) * 2
		return fmt.Sprintf("#0x%X", imm>>rot|imm<<(32-rot))
	}
	rm := op & 0xF
	typ := op >> 5 & 3
	if op&(1<<4) != 0 {
		return fmt.Sprintf("R%d,%s R%d", rm, shiftNames[typ], op>>8&0xF)
	}
	amount := op >> 7 & 0x1F
	if amount == 0 && typ == 0 {
		return fmt.Sprintf("R%d", rm)
	}
	if amount == 0 && typ == 3 {
		return fmt.Sprintf("R%d,RRX", rm)
	}
	if amount == 0 {
		amount = 32
	}
	return fmt.Sprintf("R%d,%s #%d", rm, shiftNames[typ], amount)
}

// DisasmARM renders one ARM instruction. pc is the address the opcode was
// fetched from; PC-relative operands resolve against pc+8.
func DisasmARM(op uint32, pc uint32) string {
	cc := condNames[op>>28&0xF]

	switch {
	case op&0x0FFFFFF0 == 0x012FFF10:
		return fmt.Sprintf("BX%s R%d", cc, op&0xF)

	case op&0x0FC000F0 == 0x00000090:
		rd, rn := op>>16&0xF, op>>12&0xF
		s := ""
		if op&(1<<20) != 0 {
			s = "S"
		}
		if op&(1<<21) != 0 {
			return fmt.Sprintf("MLA%s%s R%d,R%d,R%d,R%d", cc, s, rd, op&0xF, op>>8&0xF, rn)
		}
		return fmt.Sprintf("MUL%s%s R%d,R%d,R%d", cc, s, rd, op&0xF, op>>8&0xF)

	case op&0x0F8000F0 == 0x00800090:
		name := [4]string{"UMULL", "UMLAL", "SMULL", "SMLAL"}[op>>21&3]
		return fmt.Sprintf("%s%s R%d,R%d,R%d,R%d", name, cc, op>>12&0xF, op>>16&0xF, op&0xF, op>>8&0xF)

	case op&0x0FB00FF0 == 0x01000090:
		b := ""
		if op&(1<<22) != 0 {
			b = "B"
		}
		return fmt.Sprintf("SWP%s%s R%d,R%d,[R%d]", cc, b, op>>12&0xF, op&0xF, op>>16&0xF)

	case op&0x0E000090 == 0x00000090 && op&0x60 != 0:
		name := "STRH"
		if op&(1<<20) != 0 {
			name = [4]string{"", "LDRH", "LDRSB", "LDRSH"}[op>>5&3]
		}
		rd, rn := op>>12&0xF, op>>16&0xF
		if op&(1<<22) != 0 {
			off := op>>4&0xF0 | op&0xF
			return fmt.Sprintf("%s%s R%d,[R%d,#0x%X]", name, cc, rd, rn, off)
		}
		return fmt.Sprintf("%s%s R%d,[R%d,R%d]", name, cc, rd, rn, op&0xF)

	case op&0x0FBF0FFF == 0x010F0000:
		psr := "CPSR"
		if op&(1<<22) != 0 {
			psr = "SPSR"
		}
		return fmt.Sprintf("MRS%s R%d,%s", cc, op>>12&0xF, psr)

	case op&0x0FB0FFF0 == 0x0120F000 || op&0x0FB0F000 == 0x0320F000:
		psr := "CPSR"
		if op&(1<<22) != 0 {
			psr = "SPSR"
		}
		if op&(1<<25) != 0 {
			return fmt.Sprintf("MSR%s %s,%s", cc, psr, operand2(op))
		}
		return fmt.Sprintf("MSR%s %s,R%d", cc, psr, op&0xF)

	case op>>26&3 == 0:
		code := op >> 21 & 0xF
		rd, rn := op>>12&0xF, op>>16&0xF
		s := ""
		if op&(1<<20) != 0 {
			s = "S"
		}
		switch {
		case code >= 8 && code <= 0xB: // compares write no Rd
			return fmt.Sprintf("%s%s R%d,%s", dpNames[code], cc, rn, operand2(op))
		case code == 0xD || code == 0xF: // MOV and MVN take no Rn
			return fmt.Sprintf("%s%s%s R%d,%s", dpNames[code], cc, s, rd, operand2(op))
		default:
			return fmt.Sprintf("%s%s%s R%d,R%d,%s", dpNames[code], cc, s, rd, rn, operand2(op))
		}

	case op>>26&3 == 1:
		name := "STR"
		if op&(1<<20) != 0 {
			name = "LDR"
		}
		b := ""
		if op&(1<<22) != 0 {
			b = "B"
		}
		rd, rn := op>>12&0xF, op>>16&0xF
		wb := ""
		if op&(1<<21) != 0 {
			wb = "!"
		}
		if op&(1<<25) == 0 {
			off := op & 0xFFF
			if rn == 15 {
				target := pc + 8 + off
				if op&(1<<23) == 0 {
					target = pc + 8 - off
				}
				return fmt.Sprintf("%s%s%s R%d,[0x%08X]", name, b, cc, rd, target)
			}
			sign := ""
			if op&(1<<23) == 0 {
				sign = "-"
			}
			return fmt.Sprintf("%s%s%s R%d,[R%d,#%s0x%X]%s", name, b, cc, rd, rn, sign, off, wb)
		}
		return fmt.Sprintf("%s%s%s R%d,[R%d,%s]%s", name, b, cc, rd, rn, operand2(op&^(1<<25)), wb)

	case op>>25&7 == 4:
		name := "STM"
		if op&(1<<20) != 0 {
			name = "LDM"
		}
		mode := [4]string{"DA", "IA", "DB", "IB"}[op>>23&3]
		wb := ""
		if op&(1<<21) != 0 {
			wb = "!"
		}
		usr := ""
		if op&(1<<22) != 0 {
			usr = "^"
		}
		return fmt.Sprintf("%s%s%s R%d%s,%s%s", name, mode, cc, op>>16&0xF, wb, regList(op&0xFFFF, 16), usr)

	case op>>25&7 == 5:
		off := int32(op<<8) >> 6
		target := pc + 8 + uint32(off)
		if op&(1<<24) != 0 {
			return fmt.Sprintf("BL%s 0x%08X", cc, target)
		}
		return fmt.Sprintf("B%s 0x%08X", cc, target)

	case op>>24&0xF == 0xF:
		return fmt.Sprintf("SWI%s 0x%02X", cc, (op&0xFFFFFF)>>16)
	}
	return fmt.Sprintf("DCD 0x%08X", op)
}

var thumbALUNames = [16]string{
	"AND", "EOR", "LSL", "LSR", "ASR", "ADC", "SBC", "ROR",
	"TST", "NEG", "CMP", "CMN", "ORR", "MUL", "BIC", "MVN",
}

// DisasmThumb renders one Thumb instruction. PC-relative operands resolve
// against pc+4.
func DisasmThumb(op uint16, pc uint32) string {
	rd, rs := uint32(op&7), uint32(op>>3&7)

	switch {
	case op>>11 < 3:
		return fmt.Sprintf("%s R%d,R%d,#%d", shiftNames[op>>11], rd, rs, op>>6&0x1F)

	case op>>11 == 3:
		name := "ADD"
		if op&0x200 != 0 {
			name = "SUB"
		}
		if op&0x400 != 0 {
			return fmt.Sprintf("%s R%d,R%d,#%d", name, rd, rs, op>>6&7)
		}
		return fmt.Sprintf("%s R%d,R%d,R%d", name, rd, rs, op>>6&7)

	case op>>13 == 1:
		name := [4]string{"MOV", "CMP", "ADD", "SUB"}[op>>11&3]
		return fmt.Sprintf("%s R%d,#0x%02X", name, op>>8&7, op&0xFF)

	case op>>10 == 0x10:
		return fmt.Sprintf("%s R%d,R%d", thumbALUNames[op>>6&0xF], rd, rs)

	case op>>10 == 0x11:
		hd := rd | uint32(op>>4&8)
		hs := rs | uint32(op>>3&8)
		switch op >> 8 & 3 {
		case 0:
			return fmt.Sprintf("ADD R%d,R%d", hd, hs)
		case 1:
			return fmt.Sprintf("CMP R%d,R%d", hd, hs)
		case 2:
			return fmt.Sprintf("MOV R%d,R%d", hd, hs)
		default:
			return fmt.Sprintf("BX R%d", hs)
		}

	case op>>11 == 9:
		off := uint32(op&0xFF) << 2
		return fmt.Sprintf("LDR R%d,[0x%08X]", op>>8&7, (pc+4)&^2+off)

	case op>>12 == 5 && op&0x200 == 0:
		name := [4]string{"STR", "STRB", "LDR", "LDRB"}[op>>10&3]
		return fmt.Sprintf("%s R%d,[R%d,R%d]", name, rd, rs, op>>6&7)

	case op>>12 == 5:
		name := [4]string{"STRH", "LDRH", "LDSB", "LDSH"}[op>>9&2|op>>11&1]
		return fmt.Sprintf("%s R%d,[R%d,R%d]", name, rd, rs, op>>6&7)

	case op>>13 == 3:
		name := [4]string{"STR", "LDR", "STRB", "LDRB"}[op>>11&3]
		off := uint32(op >> 6 & 0x1F)
		if op&(1<<12) == 0 {
			off <<= 2
		}
		return fmt.Sprintf("%s R%d,[R%d,#0x%X]", name, rd, rs, off)

	case op>>12 == 8:
		name := "STRH"
		if op&(1<<11) != 0 {
			name = "LDRH"
		}
		return fmt.Sprintf("%s R%d,[R%d,#0x%X]", name, rd, rs, (op>>6&0x1F)<<1)

	case op>>12 == 9:
		name := "STR"
		if op&(1<<11) != 0 {
			name = "LDR"
		}
		return fmt.Sprintf("%s R%d,[SP,#0x%X]", name, op>>8&7, (op&0xFF)<<2)

	case op>>12 == 0xA:
		base := "PC"
		if op&(1<<11) != 0 {
			base = "SP"
		}
		return fmt.Sprintf("ADD R%d,%s,#0x%X", op>>8&7, base, (op&0xFF)<<2)

	case op>>8 == 0xB0:
		if op&0x80 != 0 {
			return fmt.Sprintf("SUB SP,#0x%X", (op&0x7F)<<2)
		}
		return fmt.Sprintf("ADD SP,#0x%X", (op&0x7F)<<2)

	case op>>9 == 0x5A || op>>9 == 0x5E:
		list := regList(uint32(op)&0xFF, 8)
		extra := "LR"
		name := "PUSH"
		if op&(1<<11) != 0 {
			extra = "PC"
			name = "POP"
		}
		if op&0x100 != 0 {
			sep := ","
			if list == "{}" {
				sep = ""
			}
			list = strings.TrimSuffix(list, "}") + sep + extra + "}"
		}
		return name + " " + list

	case op>>12 == 0xC:
		name := "STMIA"
		if op&(1<<11) != 0 {
			name = "LDMIA"
		}
		return fmt.Sprintf("%s R%d!,%s", name, op>>8&7, regList(uint32(op)&0xFF, 8))

	case op>>8 == 0xDF:
		return fmt.Sprintf("SWI 0x%02X", op&0xFF)

	case op>>12 == 0xD:
		off := int32(int8(op)) << 1
		return fmt.Sprintf("B%s 0x%08X", condNames[op>>8&0xF], pc+4+uint32(off))

	case op>>11 == 0x1C:
		off := int32(op&0x7FF) << 21 >> 20
		return fmt.Sprintf("B 0x%08X", pc+4+uint32(off))

	case op>>11 == 0x1E:
		return "BL (high half)"

	case op>>11 == 0x1F:
		return "BL (low half)"
	}
	return fmt.Sprintf("DCW 0x%04X", op)
}
