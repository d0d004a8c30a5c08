package process

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterPage serves the upload page at the root path.
func RegisterPage(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(uploadPage))
	})
}

const uploadPage = `<!DOCTYPE html>
<html>
<head>
    <title>CSV File Processor</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .container { max-width: 600px; margin: 0 auto; }
        .upload-form {
            border: 2px dashed #ccc;
            padding: 20px;
            text-align: center;
            margin-bottom: 20px;
        }
        .status { margin-top: 20px; }
        #progressBar {
            width: 100%;
            height: 20px;
            background-color: #f0f0f0;
            border-radius: 10px;
            display: none;
        }
        #progressBar div {
            height: 100%;
            background-color: #4CAF50;
            border-radius: 10px;
            width: 0%;
            transition: width 0.5s;
        }
        .download-link {
            display: inline-block;
            margin-top: 20px;
            margin-right: 10px;
            padding: 10px 20px;
            background-color: #4CAF50;
            color: white;
            text-decoration: none;
            border-radius: 5px;
        }
        .download-link:hover { background-color: #45a049; }
        #downloads { margin-top: 20px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>CSV File Processor</h1>
        <div class="upload-form">
            <form id="uploadForm" enctype="multipart/form-data">
                <input type="file" name="file" accept=".csv" required>
                <button type="submit">Process File</button>
            </form>
        </div>
        <div id="progressBar"><div></div></div>
        <div id="status" class="status"></div>
        <div id="downloads" style="display: none;">
            <a id="downloadLink" class="download-link" href="#">Download Processed File</a>
            <a id="downloadLinkListmonk" class="download-link" href="#">Download ListMonk Format</a>
        </div>
    </div>
    <script>
        document.getElementById('uploadForm').onsubmit = async (e) => {
            e.preventDefault();

            const formData = new FormData(e.target);
            const status = document.getElementById('status');
            const progressBar = document.getElementById('progressBar');
            const progressDiv = progressBar.querySelector('div');
            const downloads = document.getElementById('downloads');

            status.textContent = 'Uploading and processing file...';
            progressBar.style.display = 'block';
            progressDiv.style.width = '50%';
            downloads.style.display = 'none';

            try {
                const response = await fetch('/api/v1/process', {
                    method: 'POST',
                    body: formData
                });

                const result = await response.json();
                if (!response.ok) {
                    throw new Error(result.error ? result.error.message : response.statusText);
                }
                progressDiv.style.width = '100%';
                status.textContent = 'Processing complete! Attempted: ' + result.attempted + ', Succeeded: ' + result.succeeded;

                downloads.style.display = 'block';
                document.getElementById('downloadLink').href = '/api/v1/download/' + result.runId + '/' + result.filename;
                document.getElementById('downloadLinkListmonk').href = '/api/v1/download/' + result.runId + '/' + result.listmonkFilename;
            } catch (error) {
                status.textContent = 'Error processing file: ' + error.message;
                progressDiv.style.backgroundColor = '#ff0000';
            }
        };
    </script>
</body>
</html>
`
