package knowledge

import "kennel-assistant/internal/domain"

const defaultSiteContext = "Профессиональный питомник японских шпицев. Продаем здоровых щенков с родословной, документами РКФ. Предоставляем консультации по уходу и воспитанию."

var defaultEntries = []domain.FAQEntry{
	{
		Question: "Сколько стоит щенок?",
		Answer:   "Цена щенка японского шпица варьируется от 80 000 до 150 000 рублей в зависимости от родословной, окраса и класса.",
		Keywords: []string{"цена", "стоит", "сколько", "стоимость", "рублей", "дорого"},
	},
	{
		Question: "Какие документы у щенков?",
		Answer:   "Все щенки имеют метрику щенка (родословную), ветеринарный паспорт с отметками о прививках, чип и договор купли-продажи.",
		Keywords: []string{"документы", "родословная", "метрика", "паспорт", "чип", "прививки"},
	},
	{
		Question: "В каком возрасте можно забирать щенка?",
		Answer:   "Щенков можно забирать в новый дом не раньше 2 месяцев, когда они полностью привиты и социализированы.",
		Keywords: []string{"возраст", "забирать", "когда", "месяцев", "домой"},
	},
	{
		Question: "Как ухаживать за шерстью?",
		Answer:   "Японский шпиц требует регулярного расчесывания 2-3 раза в неделю. Шерсть не пахнет и не линяет круглый год.",
		Keywords: []string{"шерсть", "уход", "расчесывать", "линька", "груминг"},
	},
	{
		Question: "Есть ли доставка?",
		Answer:   "Да, мы организуем доставку по всей России и за рубеж. Также возможен самовывоз из питомника.",
		Keywords: []string{"доставка", "привезти", "транспорт", "город", "регион"},
	},
}

// Default returns the kennel's built-in FAQ table.
func Default() *Base {
	b, err := New(defaultEntries, defaultSiteContext)
	if err != nil {
		panic(err)
	}
	return b
}
