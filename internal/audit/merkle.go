package audit

// BuildRoot сводит упорядоченный список событий к одному Merkle-корню.
// Листья — дайджесты событий в порядке вставки в буфер (FIFO), уровни
// схлопываются попарно слева направо. Непарный хвост нечетного уровня
// ПОДНИМАЕТСЯ на следующий уровень как есть, без дублирования.
//
// Контракт детерминизма: фиксированный порядок входа — один и тот же
// корень везде и всегда; смена порядка или любого поля любого события
// меняет корень (tamper evidence).
func BuildRoot(events []Event) (string, error) {
	if len(events) == 0 {
		return "", ErrEmptyBatch
	}

	level := make([]string, 0, len(events))
	for _, e := range events {
		leaf, err := HashEvent(e)
		if err != nil {
			return "", err
		}
		level = append(level, leaf)
	}

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, HashPair(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0], nil
}
