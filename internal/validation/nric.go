// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

var (
	nricWeights = [7]int{2, 7, 6, 5, 4, 3, 2}

	// Таблицы контрольных букв: ST — для граждан, FG — для резидентов.
	nricLettersST = "JZIHGFEDCBA"
	nricLettersFG = "XWUTRQPNMLK"
)

// IsValidNric проверяет корректность NRIC: префикс S/T/F/G, семь цифр
// и контрольная буква, вычисляемая по взвешенной сумме цифр.
func IsValidNric(nric string) bool {
	if len(nric) != 9 {
		return false
	}

	prefix := rune(nric[0])
	check := rune(nric[8])

	sum := 0
	for i := 0; i < 7; i++ {
		ch := rune(nric[i+1])
		if !unicode.IsDigit(ch) {
			return false
		}
		sum += int(ch-'0') * nricWeights[i]
	}

	switch prefix {
	case 'T', 'G':
		sum += 4
	case 'S', 'F':
	default:
		return false
	}

	letters := nricLettersST
	if prefix == 'F' || prefix == 'G' {
		letters = nricLettersFG
	}

	return check == rune(letters[sum%11])
}
