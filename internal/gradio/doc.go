// Package gradio is a small client for the Gradio HTTP protocol spoken by the
// GPT-SoVITS WebUI.
//
// A Client discovers the server's callable functions from GET /config,
// uploads local files referenced by FileData arguments, and invokes functions
// by name through POST /api/predict/. The name→index table is an explicit
// FunctionMap value rebuilt whenever the client (re)connects.
//
// Typical usage:
//
//	c := gradio.New("http://localhost:9872/", gradio.WithTimeout(5*time.Minute))
//	defer c.Close()
//	data, err := c.Call(ctx, "/change_gpt_weights", "GPT_weights/voice.ckpt")
package gradio
