package session

import "errors"

var (
	// ErrNoFileLoaded — операция требует загруженных данных; лечится загрузкой архива.
	ErrNoFileLoaded = errors.New("No file loaded")
	// ErrInvalidDirection — направление навигации не из first/last/forward/backward.
	ErrInvalidDirection = errors.New("invalid direction")
	// ErrSuperseded — ответ устарел: после него был отправлен более новый запрос.
	ErrSuperseded = errors.New("superseded")
	// ErrUnknownMessage — ключ не указывает на сообщение текущего чанка.
	ErrUnknownMessage = errors.New("message is not in the current chunk")
	// ErrSessionNotFound — нет ни живой сессии, ни её снимка.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNothingToResume — у сессии нет папки, которую можно открыть заново.
	ErrNothingToResume = errors.New("nothing to resume")
)

// Kind классифицирует сбой сервера чанков.
type Kind string

const (
	KindNavigationFailed Kind = "NavigationFailed"
	KindLoadFailed       Kind = "LoadFailed"
	KindSaveFailed       Kind = "SaveFailed"
	KindExportFailed     Kind = "ExportFailed"
)

// OpError — сбой операции на сервере чанков. Error() возвращает текст сервера без изменений,
// чтобы показать его пользователю. Локальное состояние при этом не меняется.
type OpError struct {
	Kind Kind
	Err  error
}

func (e *OpError) Error() string { return e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

func opError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Kind: kind, Err: err}
}
