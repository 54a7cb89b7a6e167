package router

import (
	"net/http"

	"sitevault/backend/app/controllers"
	"sitevault/backend/app/middleware"
)

func NewRouter(exportCtrl *controllers.ExportController, manifestCtrl *controllers.ManifestController, fileCtrl *controllers.FileController, auth *middleware.Auth) http.Handler {
	mux := http.NewServeMux()
	// public
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	// export protocol, all behind the shared key
	keyed := http.NewServeMux()
	keyed.HandleFunc("/db/init", exportCtrl.Init)
	keyed.HandleFunc("/db/process", exportCtrl.Process)
	keyed.HandleFunc("/db/download", exportCtrl.Download)
	keyed.HandleFunc("/db/finish", exportCtrl.Finish)
	keyed.HandleFunc("/manifest/init", manifestCtrl.Init)
	keyed.HandleFunc("/manifest/page", manifestCtrl.Page)
	keyed.HandleFunc("/manifest/finish", manifestCtrl.Finish)
	keyed.HandleFunc("/file", fileCtrl.Fetch)
	keyed.HandleFunc("/files/batch", fileCtrl.FetchBatch)
	mux.Handle("/", auth.RequireKey(keyed))

	return mux
}
