// Пакет static раздаёт ресурсы веб-интерфейса TaskTrack, встроенные
// в бинарник: деплой не зависит от файлов на диске.
package static

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed css/app.css
var content embed.FS

// FileSystem оборачивает встроенные файлы для маршрута /static/*.
func FileSystem() http.FileSystem {
	return http.FS(content)
}

// FS открывает встроенные файлы как fs.FS.
func FS() fs.FS {
	return content
}
