package session

// generalSubject не считается предметом при подсчёте.
const generalSubject = "general"

// ModeSubject возвращает самый частый предмет сообщений.
// При равенстве побеждает предмет, использованный позже. Пустой и "general"
// не учитываются. Если предметов нет - пустая строка.
// msgs упорядочены по времени, новейшее последним.
func ModeSubject(msgs []*ChatMessage) string {
	counts := make(map[string]int)
	lastSeen := make(map[string]int)
	for i, m := range msgs {
		if m == nil || m.Subject == "" || m.Subject == generalSubject {
			continue
		}
		counts[m.Subject]++
		lastSeen[m.Subject] = i
	}

	best, bestCount, bestSeen := "", 0, -1
	for s, c := range counts {
		if c > bestCount || (c == bestCount && lastSeen[s] > bestSeen) {
			best, bestCount, bestSeen = s, c, lastSeen[s]
		}
	}
	return best
}
