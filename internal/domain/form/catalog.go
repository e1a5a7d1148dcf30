package form

import (
	"strconv"

	"github.com/samber/lo"
)

// FIM section ids. Scoring reports a subscore per section.
const (
	FIMMotor     = "motor"
	FIMCognitive = "cognitive"
)

// LFKMuscleStrength is the LFK section whose 0-5 grades are summed.
const LFKMuscleStrength = "muscleStrength"

type catalogItem struct {
	id, label string
}

var fimMotorItems = []catalogItem{
	{"eating", "Приём пищи"},
	{"grooming", "Уход за внешностью"},
	{"bathing", "Мытьё"},
	{"dressingUpper", "Одевание верхней части тела"},
	{"dressingLower", "Одевание нижней части тела"},
	{"toileting", "Туалет"},
	{"bladder", "Контроль мочевого пузыря"},
	{"bowel", "Контроль прямой кишки"},
	{"transferBed", "Перемещение: кровать, стул, кресло-коляска"},
	{"transferToilet", "Перемещение: туалет"},
	{"transferBath", "Перемещение: ванна, душ"},
	{"locomotion", "Передвижение: ходьба или кресло-коляска"},
	{"stairs", "Подъём по лестнице"},
}

var fimCognitiveItems = []catalogItem{
	{"comprehension", "Понимание"},
	{"expression", "Выражение"},
	{"socialInteraction", "Социальное взаимодействие"},
	{"problemSolving", "Решение проблем"},
	{"memory", "Память"},
}

// fimLevels are the seven FIM grades, from total assistance to complete
// independence.
var fimLevels = []string{
	"Полная помощь",
	"Значительная помощь",
	"Умеренная помощь",
	"Минимальная помощь",
	"Наблюдение или подготовка",
	"Ограниченная независимость",
	"Полная независимость",
}

func num(v float64) *float64 { return &v }

func options(pairs ...string) []Option {
	return lo.Map(lo.Chunk(pairs, 2), func(p []string, _ int) Option {
		return Option{Value: p[0], Label: p[1]}
	})
}

func fimField(item catalogItem, _ int) Field {
	return Field{
		ID:       item.id,
		Label:    item.label,
		Type:     FieldScale,
		Required: true,
		Min:      num(1),
		Max:      num(7),
		Options: lo.Map(fimLevels, func(label string, i int) Option {
			return Option{Value: strconv.Itoa(i + 1), Label: label}
		}),
	}
}

// FIMTemplate is the Functional Independence Measure: 18 items graded 1-7,
// 13 motor and 5 cognitive.
func FIMTemplate() Form {
	desc := "Шкала функциональной независимости (FIM): 18 пунктов, оценка от 1 до 7"
	return Form{
		Title:       "Шкала функциональной независимости (FIM)",
		Type:        TypeFIM,
		Status:      StatusActive,
		Version:     1,
		Description: &desc,
		Schema: Schema{Sections: []Section{
			{ID: FIMMotor, Title: "Двигательные функции", Fields: lo.Map(fimMotorItems, fimField)},
			{ID: FIMCognitive, Title: "Когнитивные функции", Fields: lo.Map(fimCognitiveItems, fimField)},
		}},
	}
}

func strengthField(item catalogItem, _ int) Field {
	return Field{ID: item.id, Label: item.label, Type: FieldScale, Min: num(0), Max: num(5), Unit: "балл"}
}

// LFKTemplate is the exercise therapy (LFK) examination.
func LFKTemplate() Form {
	desc := "Первичный осмотр врача ЛФК"
	return Form{
		Title:       "Осмотр врача ЛФК",
		Type:        TypeLFK,
		Status:      StatusActive,
		Version:     1,
		Description: &desc,
		Schema: Schema{Sections: []Section{
			{ID: "complaints", Title: "Жалобы", Fields: []Field{
				{ID: "complaints", Label: "Жалобы пациента", Type: FieldTextarea, Required: true},
				{ID: "painLevel", Label: "Интенсивность боли (ВАШ)", Type: FieldScale, Min: num(0), Max: num(10), Unit: "балл"},
			}},
			{ID: "anamnesis", Title: "Анамнез", Fields: []Field{
				{ID: "diseaseHistory", Label: "Анамнез заболевания", Type: FieldTextarea},
				{ID: "onsetDate", Label: "Дата начала заболевания или травмы", Type: FieldDate},
				{ID: "previousRehab", Label: "Ранее проходил реабилитацию", Type: FieldBoolean},
			}},
			{ID: "objective", Title: "Объективный статус", Fields: []Field{
				{ID: "heartRate", Label: "ЧСС в покое", Type: FieldNumber, Min: num(30), Max: num(220), Unit: "уд/мин"},
				{ID: "bloodPressure", Label: "Артериальное давление", Type: FieldText, Placeholder: "120/80"},
				{ID: "posture", Label: "Осанка", Type: FieldSelect, Options: options(
					"normal", "Правильная",
					"kyphotic", "Кифотическая",
					"lordotic", "Лордотическая",
					"scoliotic", "Сколиотическая",
				)},
				{ID: "gait", Label: "Походка", Type: FieldSelect, Options: options(
					"normal", "Не изменена",
					"antalgic", "Анталгическая",
					"hemiparetic", "Гемипаретическая",
					"ataxic", "Атактическая",
					"aided", "С дополнительной опорой",
				)},
			}},
			{ID: "rangeOfMotion", Title: "Объём движений в суставах", Fields: []Field{
				{ID: "shoulderFlexion", Label: "Сгибание в плечевом суставе", Type: FieldNumber, Min: num(0), Max: num(180), Unit: "°"},
				{ID: "elbowFlexion", Label: "Сгибание в локтевом суставе", Type: FieldNumber, Min: num(0), Max: num(150), Unit: "°"},
				{ID: "hipFlexion", Label: "Сгибание в тазобедренном суставе", Type: FieldNumber, Min: num(0), Max: num(140), Unit: "°"},
				{ID: "kneeFlexion", Label: "Сгибание в коленном суставе", Type: FieldNumber, Min: num(0), Max: num(160), Unit: "°"},
			}},
			{ID: LFKMuscleStrength, Title: "Мышечная сила (0–5 баллов)", Fields: lo.Map([]catalogItem{
				{"upperLeft", "Левая верхняя конечность"},
				{"upperRight", "Правая верхняя конечность"},
				{"lowerLeft", "Левая нижняя конечность"},
				{"lowerRight", "Правая нижняя конечность"},
				{"trunk", "Мышцы туловища"},
			}, strengthField)},
			{ID: "tolerance", Title: "Толерантность к физической нагрузке", Fields: []Field{
				{ID: "exerciseTolerance", Label: "Толерантность к нагрузке", Type: FieldRadio, Required: true, Options: options(
					"low", "Низкая",
					"moderate", "Средняя",
					"high", "Высокая",
				)},
				{ID: "sixMinuteWalk", Label: "Тест шестиминутной ходьбы", Type: FieldNumber, Min: num(0), Max: num(1000), Unit: "м"},
			}},
			{ID: "recommendations", Title: "Рекомендации", Fields: []Field{
				{ID: "exerciseProgram", Label: "Программа занятий", Type: FieldCheckbox, Options: options(
					"breathing", "Дыхательная гимнастика",
					"balance", "Тренировка равновесия",
					"strength", "Силовые упражнения",
					"stretching", "Упражнения на растяжку",
					"gait", "Тренировка ходьбы",
					"ergotherapy", "Эрготерапия",
				)},
				{ID: "recommendations", Label: "Рекомендации", Type: FieldTextarea, Required: true},
				{ID: "nextVisit", Label: "Дата следующего осмотра", Type: FieldDate},
			}},
		}},
	}
}

// Catalog lists the built-in templates.
func Catalog() []Form {
	return []Form{FIMTemplate(), LFKTemplate()}
}
